package mongo

import (
	"time"

	"github.com/vladislavdragonenkov/psp/internal/domain"
)

// serviceDocument — представление записи способа в коллекции services.
type serviceDocument struct {
	ID        string            `bson:"_id"`
	Code      string            `bson:"code"`
	Type      string            `bson:"type"`
	Name      string            `bson:"name"`
	Provider  string            `bson:"provider"`
	Status    int32             `bson:"status"`
	Position  int32             `bson:"position"`
	Config    map[string]string `bson:"config,omitempty"`
	Version   int64             `bson:"version"`
	Prices    []priceDocument   `bson:"prices,omitempty"`
	Texts     []textDocument    `bson:"texts,omitempty"`
	Media     []mediaDocument   `bson:"media,omitempty"`
	CreatedAt time.Time         `bson:"createdAt"`
	UpdatedAt time.Time         `bson:"updatedAt"`
}

type priceDocument struct {
	Currency    string `bson:"currency"`
	AmountMinor int64  `bson:"amountMinor"`
}

type textDocument struct {
	Locale      string `bson:"locale"`
	Title       string `bson:"title"`
	Description string `bson:"description,omitempty"`
}

type mediaDocument struct {
	Kind string `bson:"kind"`
	URL  string `bson:"url"`
}

func mapServiceDocument(doc serviceDocument) domain.Service {
	svc := domain.Service{
		ID:        doc.ID,
		Code:      doc.Code,
		Type:      domain.ServiceType(doc.Type),
		Name:      doc.Name,
		Provider:  doc.Provider,
		Status:    doc.Status,
		Position:  doc.Position,
		Config:    doc.Config,
		Version:   doc.Version,
		CreatedAt: doc.CreatedAt,
		UpdatedAt: doc.UpdatedAt,
	}
	for _, p := range doc.Prices {
		svc.Prices = append(svc.Prices, domain.ServicePrice{Currency: p.Currency, AmountMinor: p.AmountMinor})
	}
	for _, t := range doc.Texts {
		svc.Texts = append(svc.Texts, domain.ServiceText{Locale: t.Locale, Title: t.Title, Description: t.Description})
	}
	for _, m := range doc.Media {
		svc.Media = append(svc.Media, domain.ServiceMedia{Kind: m.Kind, URL: m.URL})
	}
	return svc
}
