package service

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"
	"time"

	"idportal/internal/apperr"
	"idportal/internal/model"
	"idportal/internal/repository"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

const (
	loginLinkPath     = "/auth/verify"
	candidateLinkPath = "/candidate/verify"
)

var errBadLink = apperr.Unauthenticated("the link is invalid or has expired")

// LinkManager issues and redeems magic links. A token is "<linkID>.<secret>";
// only a bcrypt hash of the secret is stored.
type LinkManager struct {
	repo        repository.MagicLinkRepository
	frontendURL string
	cost        int
	now         func() time.Time
}

func NewLinkManager(repo repository.MagicLinkRepository, frontendURL string) *LinkManager {
	return &LinkManager{
		repo:        repo,
		frontendURL: strings.TrimRight(frontendURL, "/"),
		cost:        bcrypt.DefaultCost,
		now:         time.Now,
	}
}

// Issue stores a new link and returns its raw token.
func (m *LinkManager) Issue(ctx context.Context, purpose string, role model.Role, subjectID uuid.UUID, email string, ttl time.Duration) (string, error) {
	raw := make([]byte, 32)
	if _, err := rand.Read(raw); err != nil {
		return "", fmt.Errorf("failed to generate link secret: %w", err)
	}
	secret := base64.RawURLEncoding.EncodeToString(raw)

	hash, err := bcrypt.GenerateFromPassword([]byte(secret), m.cost)
	if err != nil {
		return "", fmt.Errorf("failed to hash link secret: %w", err)
	}

	link := &model.MagicLink{
		ID:         uuid.New(),
		Purpose:    purpose,
		Role:       role,
		SubjectID:  subjectID,
		Email:      email,
		SecretHash: string(hash),
		ExpiresAt:  m.now().Add(ttl),
	}
	if err := m.repo.Create(ctx, link); err != nil {
		return "", fmt.Errorf("failed to store link: %w", err)
	}
	return link.ID.String() + "." + secret, nil
}

// Resolve checks a token without consuming it.
func (m *LinkManager) Resolve(ctx context.Context, token, purpose string) (*model.MagicLink, error) {
	idPart, secret, ok := strings.Cut(strings.TrimSpace(token), ".")
	if !ok || secret == "" {
		return nil, errBadLink
	}
	id, err := uuid.Parse(idPart)
	if err != nil {
		return nil, errBadLink
	}

	link, err := m.repo.FindByID(ctx, id)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return nil, errBadLink
		}
		return nil, fmt.Errorf("failed to load link: %w", err)
	}

	if link.Purpose != purpose || link.UsedAt != nil || m.now().After(link.ExpiresAt) {
		return nil, errBadLink
	}
	if bcrypt.CompareHashAndPassword([]byte(link.SecretHash), []byte(secret)) != nil {
		return nil, errBadLink
	}
	return link, nil
}

// Consume marks the link used. It joins the caller's transaction if any.
func (m *LinkManager) Consume(ctx context.Context, id uuid.UUID) error {
	if err := m.repo.MarkUsed(ctx, id, m.now()); err != nil {
		if apperr.Is(err, apperr.KindConflict) {
			return errBadLink
		}
		return fmt.Errorf("failed to consume link: %w", err)
	}
	return nil
}

// Revoke invalidates every outstanding link of purpose for subjectID.
func (m *LinkManager) Revoke(ctx context.Context, purpose string, subjectID uuid.UUID) error {
	return m.repo.RevokeForSubject(ctx, purpose, subjectID, m.now())
}

// URL renders the front-end address a token is mailed as.
func (m *LinkManager) URL(purpose, token string) string {
	path := loginLinkPath
	if purpose == model.LinkPurposeCandidate {
		path = candidateLinkPath
	}
	return m.frontendURL + path + "?token=" + url.QueryEscape(token)
}
