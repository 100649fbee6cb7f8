package mailer

import (
	"bytes"
	"fmt"
	"html/template"
	"strconv"
	"strings"

	"github.com/hernancolliard/tienda-online/internal/domain"
)

// AnnouncementSubject is the subject of new-product mail.
const AnnouncementSubject = "¡Nuevo producto disponible!"

var announcementTmpl = template.Must(template.New("announcement").Parse(`<div style="font-family: sans-serif; max-width: 560px">
  <h2>{{.Name}}</h2>
  {{if .ImageURL}}<img src="{{.ImageURL}}" alt="{{.Name}}" style="max-width: 100%">{{end}}
  {{if .Description}}<p>{{.Description}}</p>{{end}}
  <p><strong>Precio: ${{.Price}}</strong></p>
  <p><a href="{{.URL}}">Ver producto</a></p>
</div>`))

type announcementView struct {
	Name        string
	Description string
	Price       string
	ImageURL    string
	URL         string
}

// ProductURL returns the storefront page for a product.
func ProductURL(baseURL string, id int64) string {
	return strings.TrimRight(baseURL, "/") + "/product/" + strconv.FormatInt(id, 10)
}

// Announcement renders the new-product mail for one recipient.
func Announcement(to, baseURL string, p domain.ProductAnnouncement) (Message, error) {
	view := announcementView{
		Name:        p.Name,
		Description: p.Description,
		Price:       p.Price.StringFixed(2),
		ImageURL:    p.ImageURL,
		URL:         ProductURL(baseURL, p.ID),
	}

	var html bytes.Buffer
	if err := announcementTmpl.Execute(&html, view); err != nil {
		return Message{}, fmt.Errorf("render announcement: %w", err)
	}

	text := fmt.Sprintf("%s\n\n%s\n\nPrecio: $%s\n%s\n", view.Name, view.Description, view.Price, view.URL)
	return Message{To: to, Subject: AnnouncementSubject, HTML: html.String(), Text: text}, nil
}
