package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"idportal/internal/apperr"
	"idportal/internal/model"
	"idportal/internal/repository"

	"go.uber.org/zap"
)

type LoginRequest struct {
	Email string     `json:"email" binding:"required,email"`
	Role  model.Role `json:"role" binding:"required"`
}

type VerifyRequest struct {
	Token string `json:"token" binding:"required"`
}

// Profile is the signed-in identity with its display name.
type Profile struct {
	model.Identity
	Name string `json:"name"`
}

type VerifyResponse struct {
	Profile
	Token     string    `json:"token"`
	ExpiresAt time.Time `json:"expiresAt"`
}

type AuthService interface {
	// RequestLogin mails a sign-in link. Unknown accounts get the same answer.
	RequestLogin(ctx context.Context, req LoginRequest) error
	// SendLoginLink mails a sign-in link on an admin's behalf and reports delivery.
	SendLoginLink(ctx context.Context, actor model.Identity, role model.Role, email string) (*NotificationStatus, error)
	Verify(ctx context.Context, req VerifyRequest) (*VerifyResponse, error)
	Me(ctx context.Context, actor model.Identity) (*Profile, error)
}

type authService struct {
	users    repository.UserRepository
	vendors  repository.VendorRepository
	links    *LinkManager
	tokens   *TokenProvider
	notifier Notifier
	linkTTL  time.Duration
	log      *zap.Logger
}

func NewAuthService(users repository.UserRepository, vendors repository.VendorRepository, links *LinkManager, tokens *TokenProvider, notifier Notifier, linkTTL time.Duration, log *zap.Logger) AuthService {
	if log == nil {
		log = zap.NewNop()
	}
	return &authService{
		users:    users,
		vendors:  vendors,
		links:    links,
		tokens:   tokens,
		notifier: notifier,
		linkTTL:  linkTTL,
		log:      log,
	}
}

// account resolves email+role to a sign-in subject.
func (s *authService) account(ctx context.Context, role model.Role, email string) (*Profile, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	switch role {
	case model.RoleAdmin, model.RoleHR:
		u, err := s.users.GetByEmail(ctx, email)
		if err != nil {
			return nil, err
		}
		if u.Role != role {
			return nil, apperr.NotFound(fmt.Sprintf("no %s account for %s", role, email))
		}
		return &Profile{Identity: model.Identity{ID: u.ID, Email: u.Email, Role: u.Role}, Name: u.Name}, nil
	case model.RoleVendor:
		v, err := s.vendors.FindByEmail(ctx, email)
		if err != nil {
			return nil, err
		}
		return &Profile{Identity: model.Identity{ID: v.ID, Email: v.Email, Role: model.RoleVendor}, Name: v.Name}, nil
	default:
		return nil, apperr.Validation("role", fmt.Sprintf("cannot sign in as %q", role))
	}
}

func (s *authService) RequestLogin(ctx context.Context, req LoginRequest) error {
	p, err := s.account(ctx, req.Role, req.Email)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			s.log.Info("login requested for unknown account", zap.String("role", string(req.Role)))
			return nil
		}
		return err
	}
	if err := s.mailLink(ctx, p); err != nil {
		return apperr.External("could not send the sign-in email", err)
	}
	return nil
}

func (s *authService) SendLoginLink(ctx context.Context, actor model.Identity, role model.Role, email string) (*NotificationStatus, error) {
	if actor.Role != model.RoleAdmin {
		return nil, apperr.Authorization("only admins may send sign-in links")
	}
	p, err := s.account(ctx, role, email)
	if err != nil {
		return nil, err
	}
	status := &NotificationStatus{Type: "login_link", Channel: "email", Recipient: p.Email, Delivered: true}
	if err := s.mailLink(ctx, p); err != nil {
		status.Delivered = false
		status.Error = apperr.External("email delivery failed", err).Error()
	}
	return status, nil
}

func (s *authService) mailLink(ctx context.Context, p *Profile) error {
	token, err := s.links.Issue(ctx, model.LinkPurposeLogin, p.Role, p.ID, p.Email, s.linkTTL)
	if err != nil {
		return err
	}
	if err := s.notifier.LoginLink(ctx, p.Name, p.Email, p.Role, s.links.URL(model.LinkPurposeLogin, token)); err != nil {
		s.log.Warn("login link delivery failed", zap.String("role", string(p.Role)), zap.Error(err))
		return err
	}
	return nil
}

// Verify redeems a login link and issues an access token.
func (s *authService) Verify(ctx context.Context, req VerifyRequest) (*VerifyResponse, error) {
	link, err := s.links.Resolve(ctx, req.Token, model.LinkPurposeLogin)
	if err != nil {
		return nil, err
	}
	if err := s.links.Consume(ctx, link.ID); err != nil {
		return nil, err
	}

	p, err := s.account(ctx, link.Role, link.Email)
	if err != nil || p.ID != link.SubjectID {
		return nil, apperr.Unauthenticated("the account behind this link no longer exists")
	}

	token, expiresAt, err := s.tokens.Generate(p.Identity)
	if err != nil {
		return nil, err
	}
	s.log.Info("signed in", zap.String("user_id", p.ID.String()), zap.String("role", string(p.Role)))
	return &VerifyResponse{Profile: *p, Token: token, ExpiresAt: expiresAt}, nil
}

func (s *authService) Me(ctx context.Context, actor model.Identity) (*Profile, error) {
	p, err := s.account(ctx, actor.Role, actor.Email)
	if err != nil {
		if apperr.Is(err, apperr.KindNotFound) {
			return nil, apperr.Unauthenticated("account no longer exists")
		}
		return nil, err
	}
	return p, nil
}
