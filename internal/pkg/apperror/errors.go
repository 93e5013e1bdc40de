package apperror

import (
	"errors"
	"fmt"
	"net/http"
)

type ErrorCode string

const (
	ErrCodeNotFound        ErrorCode = "NOT_FOUND"
	ErrCodeUnauthorized    ErrorCode = "UNAUTHORIZED"
	ErrCodeForbidden       ErrorCode = "FORBIDDEN"
	ErrCodeBadRequest      ErrorCode = "BAD_REQUEST"
	ErrCodeConflict        ErrorCode = "CONFLICT"
	ErrCodeTooManyRequests ErrorCode = "TOO_MANY_REQUESTS"
	ErrCodeUpstream        ErrorCode = "UPSTREAM_ERROR"
	ErrCodeInternal        ErrorCode = "INTERNAL_ERROR"
	ErrCodeValidation      ErrorCode = "VALIDATION_ERROR"
)

// AppError - ошибка с кодом и сообщением для клиента. Message показывается пользователю.
type AppError struct {
	Code       ErrorCode
	Message    string
	HTTPStatus int
	Cause      error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Is сравнивает ошибки по коду и сообщению, чтобы errors.Is работал с обёрнутыми sentinel-ошибками.
func (e *AppError) Is(target error) bool {
	var t *AppError
	if !errors.As(target, &t) {
		return false
	}
	return e.Code == t.Code && e.Message == t.Message
}

func New(code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: codeToHTTPStatus(code),
	}
}

func Wrap(err error, code ErrorCode, message string) *AppError {
	return &AppError{
		Code:       code,
		Message:    message,
		HTTPStatus: codeToHTTPStatus(code),
		Cause:      err,
	}
}

// WithCause возвращает копию sentinel-ошибки с причиной.
func (e *AppError) WithCause(err error) *AppError {
	cp := *e
	cp.Cause = err
	return &cp
}

// Validation создаёт ошибку валидации с текстом из err.
func Validation(err error) *AppError {
	return Wrap(err, ErrCodeValidation, err.Error())
}

func codeToHTTPStatus(code ErrorCode) int {
	switch code {
	case ErrCodeNotFound:
		return http.StatusNotFound
	case ErrCodeUnauthorized:
		return http.StatusUnauthorized
	case ErrCodeForbidden:
		return http.StatusForbidden
	case ErrCodeBadRequest, ErrCodeValidation:
		return http.StatusBadRequest
	case ErrCodeConflict:
		return http.StatusConflict
	case ErrCodeTooManyRequests:
		return http.StatusTooManyRequests
	default:
		return http.StatusInternalServerError
	}
}

// As извлекает AppError из цепочки ошибок.
func As(err error) (*AppError, bool) {
	var appErr *AppError
	if errors.As(err, &appErr) {
		return appErr, true
	}
	return nil, false
}

func IsNotFound(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == ErrCodeNotFound
}

func IsForbidden(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == ErrCodeForbidden
}

func IsValidation(err error) bool {
	var appErr *AppError
	return errors.As(err, &appErr) && appErr.Code == ErrCodeValidation
}

var (
	ErrInvalidCode         = New(ErrCodeBadRequest, "Código inválido ou expirado")
	ErrTooManyCodeRequests = New(ErrCodeTooManyRequests, "Muitas tentativas. Aguarde alguns minutos.")
	ErrSMSDelivery         = New(ErrCodeUpstream, "Não foi possível enviar o código por SMS")
	ErrRegisterFirst       = New(ErrCodeNotFound, "Usuário não encontrado. Cadastre-se primeiro.")
	ErrUserNotFound        = New(ErrCodeNotFound, "Usuário não encontrado")
	ErrEmailTaken          = New(ErrCodeConflict, "Este email já está em uso")
	ErrPhoneTaken          = New(ErrCodeConflict, "Este telefone já está cadastrado")
	ErrUnauthorized        = New(ErrCodeUnauthorized, "Não autorizado")
	ErrForbidden           = New(ErrCodeForbidden, "Acesso negado")
	ErrInvalidCredentials  = New(ErrCodeUnauthorized, "Email ou senha inválidos")
	ErrDriverOnly          = New(ErrCodeForbidden, "Apenas motoristas podem acessar este recurso")
	ErrDriverNotFound      = New(ErrCodeNotFound, "Motorista não encontrado ou não habilitado para pagamentos")
	ErrNoConnectedAccount  = New(ErrCodeNotFound, "Conta Stripe não conectada")
	ErrAccountNotFound     = New(ErrCodeNotFound, "Conta Stripe não encontrada. Reconecte sua conta.")
	ErrPaymentNotFound     = New(ErrCodeNotFound, "Pagamento não encontrado")
	ErrPaymentNotEditable  = New(ErrCodeConflict, "Este pagamento não pode mais ser alterado")
	ErrChargeNotFound      = New(ErrCodeNotFound, "Cobrança não encontrada")
	ErrPaymentProvider     = New(ErrCodeUpstream, "Erro ao processar pagamento. Tente novamente.")
	ErrReceiptGeneration   = New(ErrCodeInternal, "Erro ao gerar recibo")
	ErrInvalidWebhook      = New(ErrCodeBadRequest, "Assinatura do webhook inválida")
	ErrOAuthFailed         = New(ErrCodeUnauthorized, "Falha na autenticação com Google")
	ErrInvalidUpload       = New(ErrCodeValidation, "Arquivo inválido. Envie uma imagem JPEG, PNG ou WEBP.")
	ErrFileTooLarge        = New(ErrCodeValidation, "Arquivo muito grande")
	ErrCPFRequired         = New(ErrCodeValidation, "CPF é obrigatório para motoristas")
	ErrSessionNotFound     = New(ErrCodeNotFound, "Sessão não encontrada")
	ErrOAuthDisabled       = New(ErrCodeNotFound, "Login com Google não está habilitado")
	ErrInternal            = New(ErrCodeInternal, "Erro interno do servidor")
)
