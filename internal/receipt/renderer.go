// Package receipt рендерит PDF-квитанции о платежах.
package receipt

import (
	"bytes"
	"fmt"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"
)

// Варианты квитанции.
const (
	VariantClient = "client"
	VariantDriver = "driver"
)

// Data - содержимое квитанции. Суммы в сентаво.
type Data struct {
	Variant       string
	ChargeID      string
	PaidAt        time.Time
	DriverName    string
	ClientName    string
	PaymentMethod string
	CardBrand     string
	CardLast4     string
	GrossCents    int64
	FeeCents      int64
	NetCents      int64
	FeePercent    int64
}

// Renderer собирает PDF в памяти; файлы не сохраняются.
type Renderer struct {
	FontPath string
	fontName string
}

// NewRenderer создаёт рендерер. Без fontPath используется встроенный Helvetica с cp1252.
func NewRenderer(fontPath string) *Renderer {
	return &Renderer{FontPath: fontPath, fontName: "DejaVu"}
}

// Render возвращает PDF-документ квитанции.
func (r *Renderer) Render(data Data) ([]byte, error) {
	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetTitle("Recibo Pixter "+data.ChargeID, true)
	pdf.SetAuthor("Pixter", true)
	pdf.SetMargins(20, 20, 20)
	pdf.SetAutoPageBreak(true, 20)

	font, tr := r.setupFont(pdf)
	w := writer{pdf: pdf, font: font, tr: tr}

	pdf.AddPage()

	pdf.SetFont(font, "B", 20)
	pdf.CellFormat(0, 10, tr("Pixter"), "", 1, "C", false, 0, "")
	pdf.SetFont(font, "", 12)
	title := "Comprovante de pagamento"
	if data.Variant == VariantDriver {
		title = "Recibo do motorista"
	}
	pdf.CellFormat(0, 7, tr(title), "", 1, "C", false, 0, "")
	w.hr()
	pdf.Ln(3)

	w.sectionTitle("Pagamento")
	w.kvLine("Identificador", data.ChargeID)
	w.kvLine("Data", data.PaidAt.In(saoPaulo()).Format("02/01/2006 15:04"))
	w.kvLine("Forma de pagamento", paymentMethodLabel(data))
	if data.Variant == VariantClient && data.ClientName != "" {
		w.kvLine("Pagador", data.ClientName)
	}
	w.kvLine("Motorista", data.DriverName)
	pdf.Ln(2)
	w.hr()

	w.sectionTitle("Valores")
	if data.Variant == VariantDriver {
		w.kvLine("Valor bruto", FormatBRL(data.GrossCents))
		w.kvLine(fmt.Sprintf("Taxa Pixter (%d%%)", data.FeePercent), "- "+FormatBRL(data.FeeCents))
		pdf.SetFont(font, "B", 13)
		w.kvLine("Valor líquido", FormatBRL(data.NetCents))
	} else {
		pdf.SetFont(font, "B", 13)
		w.kvLine("Valor pago", FormatBRL(data.GrossCents))
	}
	pdf.Ln(4)
	w.hr()

	pdf.SetFont(font, "", 9)
	pdf.MultiCell(0, 5, tr("Documento gerado eletronicamente por Pixter. Pagamento processado pela Stripe."), "", "C", false)

	if err := pdf.Error(); err != nil {
		return nil, fmt.Errorf("receipt: render: %w", err)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("receipt: output: %w", err)
	}
	return buf.Bytes(), nil
}

// setupFont подключает TTF с Unicode, если он задан, иначе core-шрифт с переводом в cp1252.
func (r *Renderer) setupFont(pdf *gofpdf.Fpdf) (string, func(string) string) {
	if r.FontPath != "" {
		pdf.AddUTF8Font(r.fontName, "", r.FontPath)
		pdf.AddUTF8Font(r.fontName, "B", r.FontPath)
		return r.fontName, func(s string) string { return s }
	}
	return "Helvetica", pdf.UnicodeTranslatorFromDescriptor("")
}

type writer struct {
	pdf  *gofpdf.Fpdf
	font string
	tr   func(string) string
}

func (w writer) sectionTitle(s string) {
	w.pdf.SetFont(w.font, "B", 12)
	w.pdf.CellFormat(0, 7, w.tr(s), "", 1, "L", false, 0, "")
	w.pdf.SetFont(w.font, "", 11)
}

func (w writer) kvLine(key, val string) {
	size, _ := w.pdf.GetFontSize()
	w.pdf.SetFont(w.font, "B", size)
	w.pdf.CellFormat(60, 7, w.tr(key+":"), "", 0, "L", false, 0, "")
	w.pdf.SetFont(w.font, "", size)
	w.pdf.CellFormat(0, 7, w.tr(val), "", 1, "L", false, 0, "")
	w.pdf.SetFont(w.font, "", 11)
}

func (w writer) hr() {
	y := w.pdf.GetY() + 1.5
	w.pdf.SetLineWidth(0.2)
	w.pdf.Line(20, y, 190, y)
	w.pdf.SetY(y + 2)
}

// FormatBRL форматирует сентаво как «R$ 1.234,56».
func FormatBRL(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	reais := fmt.Sprintf("%d", cents/100)
	var b strings.Builder
	for i, d := range reais {
		if i > 0 && (len(reais)-i)%3 == 0 {
			b.WriteByte('.')
		}
		b.WriteRune(d)
	}
	return fmt.Sprintf("%sR$ %s,%02d", sign, b.String(), cents%100)
}

func paymentMethodLabel(d Data) string {
	switch d.PaymentMethod {
	case "card":
		if d.CardLast4 != "" {
			return fmt.Sprintf("Cartão %s •••• %s", strings.ToUpper(d.CardBrand), d.CardLast4)
		}
		return "Cartão"
	case "pix":
		return "Pix"
	case "":
		return "-"
	default:
		return d.PaymentMethod
	}
}

func saoPaulo() *time.Location {
	loc, err := time.LoadLocation("America/Sao_Paulo")
	if err != nil {
		return time.FixedZone("BRT", -3*60*60)
	}
	return loc
}
