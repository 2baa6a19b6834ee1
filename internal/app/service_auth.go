package app

import (
	"context"
	"net/url"

	"github.com/sirupsen/logrus"

	"tablero/api/internal/authpw"
	"tablero/api/internal/rbac"
	"tablero/api/internal/store"
)

type RegisterInput struct {
	Name     string `json:"name" validate:"required,max=100"`
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=6"`
}

type RegisterResult struct {
	User              store.User
	VerificationToken string
}

// Register creates an UNREGISTERED account and mails the verification link.
// With SMTP off the caller echoes the token instead.
func (s *Service) Register(ctx context.Context, input RegisterInput) (RegisterResult, error) {
	if err := validateInput(input); err != nil {
		return RegisterResult{}, err
	}
	resp, err := s.passwords.SignUp(ctx, authpw.SignUpRequest{
		Name:     input.Name,
		Email:    input.Email,
		Password: input.Password,
	})
	if err != nil {
		return RegisterResult{}, err
	}

	if s.SMTPConfigured() {
		link := s.frontendURL("/verify-email?token=" + url.QueryEscape(resp.VerificationToken))
		if err := s.mailer.SendVerificationEmail(resp.User.Email, resp.User.Name, link); err != nil {
			s.log.WithError(err).WithField("user_id", resp.User.ID).Warn("verification email failed")
		}
	}
	s.log.WithField("user_id", resp.User.ID).Info("user registered")
	return RegisterResult{User: resp.User, VerificationToken: resp.VerificationToken}, nil
}

// VerifyEmail applies the first-user MASTER promotion inside the store.
func (s *Service) VerifyEmail(ctx context.Context, token string) (store.User, error) {
	user, err := s.passwords.VerifyEmail(ctx, token)
	if err != nil {
		return store.User{}, err
	}
	if rbac.Normalize(user.Role) == rbac.RoleMaster {
		s.log.WithField("user_id", user.ID).Info("first verified user promoted to MASTER")
	}
	return user, nil
}

// ForgotPassword returns the reset token only when it must be echoed to the
// caller because SMTP is off. Unknown emails behave like known ones.
func (s *Service) ForgotPassword(ctx context.Context, emailAddr string) (string, error) {
	reset, err := s.passwords.RequestPasswordReset(ctx, emailAddr)
	if err != nil {
		return "", err
	}
	if reset == nil {
		return "", nil
	}
	if !s.SMTPConfigured() {
		return reset.Token, nil
	}
	link := s.frontendURL("/reset-password?token=" + url.QueryEscape(reset.Token))
	if err := s.mailer.SendPasswordResetEmail(reset.User.Email, reset.User.Name, link); err != nil {
		s.log.WithError(err).WithField("user_id", reset.User.ID).Warn("password reset email failed")
	}
	return "", nil
}

func (s *Service) ResetPassword(ctx context.Context, token, newPassword string) error {
	return s.passwords.ResetPassword(ctx, authpw.ResetPasswordRequest{Token: token, NewPassword: newPassword})
}

func (s *Service) ChangePassword(ctx context.Context, session Session, currentPassword, newPassword string) error {
	actor := session.Actor()
	if !rbac.CanPerform(actor, rbac.ActionPasswordChange, rbac.Target{OwnerID: actor.ID}) {
		return errForbidden()
	}
	if err := s.passwords.ChangePassword(ctx, actor.ID, currentPassword, newPassword); err != nil {
		return err
	}
	s.log.WithFields(logrus.Fields{"user_id": actor.ID}).Info("password changed")
	return nil
}
