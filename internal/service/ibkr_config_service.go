package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/apperrors"
	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/logging"
	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/model"
	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/repository"
	"github.com/ndewijer/IBKR-Portfolio-Tracker-Backend/internal/secret"
)

// IbkrCredentials are the flex query credentials from the environment.
type IbkrCredentials struct {
	FlexToken   string
	FlexQueryID string
}

// IbkrConfigService manages the IBKR flex query configuration. Tokens
// saved through it are fernet-encrypted at rest.
type IbkrConfigService struct {
	ibkrRepo *repository.IbkrRepository
	box      *secret.Box
	fallback IbkrCredentials
	log      zerolog.Logger
}

// NewIbkrConfigService creates a new IbkrConfigService. box may be nil, in
// which case only the environment credentials can be used.
func NewIbkrConfigService(ibkrRepo *repository.IbkrRepository, box *secret.Box, fallback IbkrCredentials, log zerolog.Logger) *IbkrConfigService {
	return &IbkrConfigService{
		ibkrRepo: ibkrRepo,
		box:      box,
		fallback: fallback,
		log:      logging.Component(log, "ibkr_config"),
	}
}

// GetIbkrConfig returns the stored configuration, or the environment one
// when nothing is stored. The token is never returned.
func (s *IbkrConfigService) GetIbkrConfig(ctx context.Context) (*model.IbkrConfig, error) {
	cfg, err := s.ibkrRepo.GetIbkrConfig(ctx)
	if err != nil {
		return nil, err
	}
	cfg.FlexToken = ""
	if !cfg.Configured && s.fallback.FlexToken != "" && s.fallback.FlexQueryID != "" {
		cfg.Configured = true
		cfg.Enabled = true
		cfg.FlexQueryID = s.fallback.FlexQueryID
	}
	return cfg, nil
}

// SaveIbkrConfig encrypts and stores the credentials.
func (s *IbkrConfigService) SaveIbkrConfig(ctx context.Context, queryID, token string, enabled bool) (*model.IbkrConfig, error) {
	queryID, token = strings.TrimSpace(queryID), strings.TrimSpace(token)
	if queryID == "" || token == "" {
		return nil, fmt.Errorf("flexQueryId and flexToken: %w", apperrors.ErrMissingRequiredField)
	}
	if s.box == nil {
		return nil, apperrors.ErrEncryptionKeyMissing
	}

	encrypted, err := s.box.Encrypt(token)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt flex token: %w", err)
	}
	if err := s.ibkrRepo.SaveIbkrConfig(ctx, queryID, encrypted, enabled); err != nil {
		return nil, err
	}
	s.log.Info().Str("query_id", queryID).Bool("enabled", enabled).Msg("ibkr config saved")
	return s.GetIbkrConfig(ctx)
}

// Credentials returns the token and query id to import with. A stored
// configuration takes precedence over the environment; a stored but
// disabled one disables imports.
func (s *IbkrConfigService) Credentials(ctx context.Context) (token, queryID string, err error) {
	cfg, err := s.ibkrRepo.GetIbkrConfig(ctx)
	if err != nil {
		return "", "", err
	}
	if cfg.Configured {
		if !cfg.Enabled {
			return "", "", fmt.Errorf("import disabled: %w", apperrors.ErrIbkrNotConfigured)
		}
		if s.box == nil {
			return "", "", apperrors.ErrEncryptionKeyMissing
		}
		token, err := s.box.Decrypt(cfg.FlexToken, secret.NoExpiry)
		if err != nil {
			return "", "", fmt.Errorf("failed to decrypt flex token: %w", err)
		}
		return token, cfg.FlexQueryID, nil
	}
	if s.fallback.FlexToken != "" && s.fallback.FlexQueryID != "" {
		return s.fallback.FlexToken, s.fallback.FlexQueryID, nil
	}
	return "", "", apperrors.ErrIbkrNotConfigured
}

// MarkImported records a successful import.
func (s *IbkrConfigService) MarkImported(ctx context.Context, at time.Time) error {
	return s.ibkrRepo.UpdateLastImportDate(ctx, at)
}
