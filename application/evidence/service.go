package evidence

import (
	"context"
	"time"

	"mindscape/application/ports"
	"mindscape/domain/lens"
	pkgerrors "mindscape/pkg/errors"

	"go.uber.org/zap"
)

const defaultWindowDays = 30

// Service answers the analytical questions over lens history: how two presets
// differ, and whether configured weighting has drifted away from what
// executions actually trigger.
type Service struct {
	repo     ports.LensRepository
	receipts ports.ReceiptSource
	logger   *zap.Logger
}

// NewService creates an evidence service
func NewService(repo ports.LensRepository, receipts ports.ReceiptSource, logger *zap.Logger) *Service {
	return &Service{
		repo:     repo,
		receipts: receipts,
		logger:   logger,
	}
}

// DiffPresets returns the classified structural diff between two presets.
func (s *Service) DiffPresets(ctx context.Context, fromPresetID, toPresetID string) (*lens.PresetDiff, error) {
	if fromPresetID == "" || toPresetID == "" {
		return nil, pkgerrors.NewValidationError("both preset ids are required")
	}

	from, err := s.repo.GetPreset(ctx, fromPresetID)
	if err != nil {
		return nil, err
	}
	to, err := s.repo.GetPreset(ctx, toPresetID)
	if err != nil {
		return nil, err
	}
	return lens.DiffPresets(from, to), nil
}

// DriftReport compares a profile's configured lens settings against observed
// execution receipts over the trailing window. windowDays <= 0 falls back to
// the default window.
func (s *Service) DriftReport(ctx context.Context, profileID string, windowDays int) (*lens.DriftReport, error) {
	if profileID == "" {
		return nil, pkgerrors.NewValidationError("profile_id cannot be empty")
	}
	if windowDays <= 0 {
		windowDays = defaultWindowDays
	}

	profile, err := s.repo.GetOrCreateProfile(ctx, profileID)
	if err != nil {
		return nil, err
	}
	var preset *lens.Preset
	if profile.ActivePresetID != "" {
		preset, err = s.repo.GetPreset(ctx, profile.ActivePresetID)
		if err != nil && !pkgerrors.IsNotFound(err) {
			return nil, err
		}
	}
	settings := preset.SettingsCopy()

	now := time.Now().UTC()
	windowStart := now.AddDate(0, 0, -windowDays)
	receipts, err := s.receipts.ListReceipts(ctx, profileID, windowStart)
	if err != nil {
		return nil, err
	}

	report := lens.ComputeDrift(profileID, settings, receipts, windowStart, now, windowDays)
	s.logger.Debug("Drift report computed",
		zap.String("profileID", profileID),
		zap.Int("executions", report.TotalExecutions),
		zap.Int("nodes", len(report.Nodes)),
	)
	return report, nil
}
