package service

import (
	"context"
	"io"

	"idportal/internal/cardgen"
	"idportal/internal/model"
)

// Notifier delivers the emails lifecycle transitions trigger.
type Notifier interface {
	CandidateInvite(ctx context.Context, sub *model.Submission, link string) error
	ChangesRequested(ctx context.Context, sub *model.Submission, link string) error
	VendorAssigned(ctx context.Context, vendor *model.Vendor, count int) error
	LoginLink(ctx context.Context, name, email string, role model.Role, link string) error
}

// Publisher fans committed changes out to push subscribers.
type Publisher interface {
	Publish(event string, data interface{})
}

// PhotoStore persists an uploaded photo and returns its URL.
type PhotoStore interface {
	Save(ctx context.Context, r io.Reader) (string, error)
}

// CardRenderer turns card data into a PDF.
type CardRenderer interface {
	Render(ctx context.Context, card cardgen.Card) ([]byte, error)
}

type nopPublisher struct{}

func (nopPublisher) Publish(string, interface{}) {}
