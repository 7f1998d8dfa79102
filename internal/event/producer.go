package event

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/AhmadZeb/SecurityApi/internal/domain"
	pkgkafka "github.com/AhmadZeb/SecurityApi/pkg/kafka"
)

// Kafka topic constants for auth domain events.
const (
	TopicUserRegistered    = "securityapi.user.registered"
	TopicUserPasswordReset = "securityapi.user.password_reset"
	TopicTokenReuse        = "securityapi.auth.token_reuse"
)

// Aggregate type constant.
const AggregateTypeUser = "user"

// Source identifier for events originating from this service.
const SourceAuthService = "securityapi"

// UserRegisteredData is the payload for a user.registered event.
type UserRegisteredData struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email"`
}

// UserPasswordResetData is the payload for a user.password_reset event.
// Downstream consumers deliver the reset token to the user out of band.
type UserPasswordResetData struct {
	UserID     string    `json:"user_id"`
	Email      string    `json:"email"`
	ResetToken string    `json:"reset_token"`
	ExpiresAt  time.Time `json:"expires_at"`
}

// TokenReuseData is the payload for an auth.token_reuse event, emitted when
// a refresh token is presented again after it was already redeemed.
type TokenReuseData struct {
	UserID     string    `json:"user_id"`
	TokenID    string    `json:"token_id"`
	UsedAt     time.Time `json:"used_at"`
	DetectedAt time.Time `json:"detected_at"`
}

// Producer publishes auth domain events to Kafka.
type Producer struct {
	kafka  *pkgkafka.Producer
	logger *slog.Logger
}

// NewProducer creates a new event producer for the auth service.
func NewProducer(kafka *pkgkafka.Producer, logger *slog.Logger) *Producer {
	return &Producer{
		kafka:  kafka,
		logger: logger,
	}
}

// PublishUserRegistered publishes a user.registered event.
func (p *Producer) PublishUserRegistered(ctx context.Context, user *domain.User) error {
	data := UserRegisteredData{
		ID:       user.ID,
		Username: user.Username,
		Email:    user.Email,
	}

	event, err := pkgkafka.NewEvent(TopicUserRegistered, user.ID, AggregateTypeUser, SourceAuthService, data)
	if err != nil {
		return fmt.Errorf("create user.registered event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicUserRegistered, event); err != nil {
		return fmt.Errorf("publish user.registered event: %w", err)
	}

	p.logger.DebugContext(ctx, "published user.registered event",
		slog.String("user_id", user.ID),
	)

	return nil
}

// PublishUserPasswordReset publishes a user.password_reset event carrying
// the reset token for out-of-band delivery.
func (p *Producer) PublishUserPasswordReset(ctx context.Context, user *domain.User, resetToken string, expiresAt time.Time) error {
	data := UserPasswordResetData{
		UserID:     user.ID,
		Email:      user.Email,
		ResetToken: resetToken,
		ExpiresAt:  expiresAt,
	}

	event, err := pkgkafka.NewEvent(TopicUserPasswordReset, user.ID, AggregateTypeUser, SourceAuthService, data)
	if err != nil {
		return fmt.Errorf("create user.password_reset event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicUserPasswordReset, event); err != nil {
		return fmt.Errorf("publish user.password_reset event: %w", err)
	}

	return nil
}

// PublishTokenReuse publishes an auth.token_reuse event.
func (p *Producer) PublishTokenReuse(ctx context.Context, token *domain.RefreshToken, detectedAt time.Time) error {
	data := TokenReuseData{
		UserID:     token.UserID,
		TokenID:    token.ID,
		DetectedAt: detectedAt,
	}
	if token.UsedAt != nil {
		data.UsedAt = *token.UsedAt
	}

	event, err := pkgkafka.NewEvent(TopicTokenReuse, token.UserID, AggregateTypeUser, SourceAuthService, data)
	if err != nil {
		return fmt.Errorf("create auth.token_reuse event: %w", err)
	}

	if err := p.kafka.Publish(ctx, TopicTokenReuse, event); err != nil {
		return fmt.Errorf("publish auth.token_reuse event: %w", err)
	}

	p.logger.DebugContext(ctx, "published auth.token_reuse event",
		slog.String("user_id", token.UserID),
		slog.String("token_id", token.ID),
	)

	return nil
}
