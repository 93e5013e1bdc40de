// Package sms доставляет коды подтверждения по SMS.
package sms

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/twilio/twilio-go"
	openapi "github.com/twilio/twilio-go/rest/api/v2010"

	"github.com/pixter/pixter-backend/internal/logger"
)

// TwilioSender отправляет SMS через Twilio Messages API.
type TwilioSender struct {
	client *twilio.RestClient
	from   string
}

// NewTwilioSender создаёт отправителя с реквизитами аккаунта Twilio.
func NewTwilioSender(accountSID, authToken, from string) *TwilioSender {
	client := twilio.NewRestClientWithParams(twilio.ClientParams{
		Username: accountSID,
		Password: authToken,
	})
	return &TwilioSender{client: client, from: from}
}

// Send отправляет текст на номер в формате E.164. Повторов нет.
func (s *TwilioSender) Send(ctx context.Context, to, body string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	params := &openapi.CreateMessageParams{}
	params.SetTo(to)
	params.SetFrom(s.from)
	params.SetBody(body)

	resp, err := s.client.Api.CreateMessage(params)
	if err != nil {
		return fmt.Errorf("twilio: send sms: %w", err)
	}

	fields := logrus.Fields{"to": maskPhone(to)}
	if resp.Sid != nil {
		fields["sid"] = *resp.Sid
	}
	logger.Log.WithFields(fields).Info("sms отправлено")
	return nil
}

// LogSender пишет SMS в лог вместо отправки. Используется в development.
type LogSender struct{}

// Send логирует сообщение целиком, включая код.
func (LogSender) Send(_ context.Context, to, body string) error {
	logger.Log.WithFields(logrus.Fields{"to": to, "body": body}).Warn("sms не отправлено: Twilio не настроен")
	return nil
}

// maskPhone скрывает середину номера в логах.
func maskPhone(phone string) string {
	if len(phone) <= 6 {
		return phone
	}
	return phone[:5] + "****" + phone[len(phone)-2:]
}
