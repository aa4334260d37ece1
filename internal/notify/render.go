// Package notify renders and dispatches price-drop alert emails. Templates
// are embedded at build time and rendered client-side, so the email provider
// only ever sees finished subject and body strings.
package notify

import (
	"bytes"
	"embed"
	"fmt"
	"html/template"
	"net/url"
	"strings"
	texttemplate "text/template"

	"farewatch/internal/types"
)

//go:embed templates/*.html templates/*.txt
var templateFS embed.FS

// RenderedEmail holds pre-rendered email content ready for transmission.
type RenderedEmail struct {
	Subject  string
	BodyHTML string
	BodyText string
}

// templateData is the struct passed into the alert templates.
type templateData struct {
	Route      string
	Price      string
	Target     string
	Carrier    string
	DepartDate string
	ReturnDate string
	Stops      string
	Segments   []string
	DeepLink   string
}

// Renderer renders the price-drop alert email from embedded templates.
type Renderer struct {
	htmlTmpl  *template.Template
	textTmpl  *texttemplate.Template
	publicURL string
}

// NewRenderer parses the embedded templates. publicURL is the base for the
// deep link that pre-fills a booking search with the winning offer's dates.
func NewRenderer(publicURL string) (*Renderer, error) {
	htmlContent, err := templateFS.ReadFile("templates/alert.html")
	if err != nil {
		return nil, fmt.Errorf("renderer: failed to read alert.html: %w", err)
	}
	htmlTmpl, err := template.New("alert").Parse(string(htmlContent))
	if err != nil {
		return nil, fmt.Errorf("renderer: failed to parse alert.html: %w", err)
	}

	textContent, err := templateFS.ReadFile("templates/alert.txt")
	if err != nil {
		return nil, fmt.Errorf("renderer: failed to read alert.txt: %w", err)
	}
	textTmpl, err := texttemplate.New("alert").Parse(string(textContent))
	if err != nil {
		return nil, fmt.Errorf("renderer: failed to parse alert.txt: %w", err)
	}

	return &Renderer{
		htmlTmpl:  htmlTmpl,
		textTmpl:  textTmpl,
		publicURL: strings.TrimSuffix(publicURL, "/"),
	}, nil
}

// Render produces the subject and both bodies for one winning offer.
func (r *Renderer) Render(watch *types.Watch, best *types.BestOffer) (*RenderedEmail, error) {
	data := r.buildTemplateData(watch, best)

	var htmlBuf bytes.Buffer
	if err := r.htmlTmpl.Execute(&htmlBuf, data); err != nil {
		return nil, fmt.Errorf("renderer: failed to render alert html: %w", err)
	}

	var textBuf bytes.Buffer
	if err := r.textTmpl.Execute(&textBuf, data); err != nil {
		return nil, fmt.Errorf("renderer: failed to render alert text: %w", err)
	}

	subject := fmt.Sprintf("Fare alert: %s at $%s", watch.Route(), data.Price)

	return &RenderedEmail{
		Subject:  subject,
		BodyHTML: htmlBuf.String(),
		BodyText: textBuf.String(),
	}, nil
}

func (r *Renderer) buildTemplateData(watch *types.Watch, best *types.BestOffer) templateData {
	offer := best.Offer

	data := templateData{
		Route:      watch.Route(),
		Price:      formatUsd(offer.PriceUsd),
		Target:     formatUsd(watch.TargetUsd),
		Carrier:    offer.Carrier,
		DepartDate: best.Dates.Depart.Format("Mon, Jan 2 2006"),
		Stops:      stopsSummary(&offer),
		DeepLink:   r.deepLink(watch, best),
	}
	if best.Dates.Return != nil {
		data.ReturnDate = best.Dates.Return.Format("Mon, Jan 2 2006")
	}

	for _, seg := range offer.Segments {
		data.Segments = append(data.Segments, fmt.Sprintf(
			"%s %s-%s, departs %s",
			seg.FlightNumber,
			seg.Origin,
			seg.Destination,
			seg.DepartsAt.Format("Jan 2 15:04"),
		))
	}

	return data
}

// deepLink encodes the winning offer's route, dates, and passengers into a
// search URL so the recipient lands on a pre-filled booking continuation.
func (r *Renderer) deepLink(watch *types.Watch, best *types.BestOffer) string {
	q := url.Values{}
	q.Set("origin", watch.Origin)
	q.Set("destination", watch.Destination)
	q.Set("depart", best.Dates.Depart.Format("2006-01-02"))
	if best.Dates.Return != nil {
		q.Set("return", best.Dates.Return.Format("2006-01-02"))
	}
	q.Set("adults", fmt.Sprintf("%d", watch.Adults))
	if watch.Children > 0 {
		q.Set("children", fmt.Sprintf("%d", watch.Children))
	}
	if watch.Infants > 0 {
		q.Set("infants", fmt.Sprintf("%d", watch.Infants))
	}
	q.Set("cabin", string(watch.Cabin))
	return r.publicURL + "/search?" + q.Encode()
}

func stopsSummary(offer *types.Offer) string {
	out := legStops(offer.OutboundStops)
	if offer.HasReturn {
		return fmt.Sprintf("%s out, %s back", out, legStops(offer.ReturnStops))
	}
	return out
}

func legStops(n int) string {
	switch n {
	case 0:
		return "nonstop"
	case 1:
		return "1 stop"
	default:
		return fmt.Sprintf("%d stops", n)
	}
}

func formatUsd(v float64) string {
	return fmt.Sprintf("%.0f", v)
}
