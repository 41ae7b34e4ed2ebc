package interfaces

import (
	"context"
	"io"

	"github.com/customeros/mailwarden/dto"
	"github.com/customeros/mailwarden/internal/enum"
	"github.com/customeros/mailwarden/internal/models"
)

type SuppressionService interface {
	AddEmail(ctx context.Context, email string, suppressionType enum.SuppressionType, source, reason string, metadata map[string]any) (*models.SuppressionEntry, error)
	IsSuppressed(ctx context.Context, email string) (bool, error)
	RemoveEmail(ctx context.Context, email string) (bool, error)
	GetEntry(ctx context.Context, email string) (*models.SuppressionEntry, error)
	Export(ctx context.Context, w io.Writer, withMetadata bool) (int, error)
	Import(ctx context.Context, r io.Reader, suppressionType enum.SuppressionType, source string) (*dto.ImportResult, error)
	ExportToStorage(ctx context.Context, key string) (int, error)
}
