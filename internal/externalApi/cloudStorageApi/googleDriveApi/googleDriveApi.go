package googleDriveApi

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"path/filepath"
	"time"

	"github.com/KotFed0t/dividend_tracker/config"
	"github.com/KotFed0t/dividend_tracker/internal/model"
	"github.com/KotFed0t/dividend_tracker/utils"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/option"
)

const (
	downloadLinkTemplate = "https://drive.google.com/file/d/%s/view"
	reportNamePrefix     = "portfolio_"
)

type GoogleDriveApi struct {
	srv     *drive.Service
	fileTTL time.Duration
	now     func() time.Time
}

// New connects with the service account from config. Extra options override
// the defaults, e.g. the endpoint in tests.
func New(ctx context.Context, cfg *config.Config, opts ...option.ClientOption) (*GoogleDriveApi, error) {
	if len(opts) == 0 {
		opts = []option.ClientOption{option.WithCredentialsFile(cfg.GoogleDrive.CredentialsFile)}
	}

	srv, err := drive.NewService(ctx, opts...)
	if err != nil {
		slog.Error("failed on drive.NewService", slog.String("err", err.Error()))
		return nil, err
	}
	return &GoogleDriveApi{srv: srv, fileTTL: cfg.GoogleDrive.FileTTL, now: time.Now}, nil
}

func (a *GoogleDriveApi) UploadFile(ctx context.Context, reader io.Reader, filename string) (downloadLink string, err error) {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "GoogleDriveApi.UploadFile"

	slog.Debug("UploadFile start", slog.String("rqID", rqID), slog.String("op", op), slog.String("filename", filename))

	fileMeta := &drive.File{
		Name:     filename,
		MimeType: mime.TypeByExtension(filepath.Ext(filename)),
	}

	uploadedFile, err := a.srv.Files.
		Create(fileMeta).
		Media(reader). // chunked upload, network errors are retried by the client
		Context(ctx).
		Do()
	if err != nil {
		slog.Error("failed on uploading file to google drive", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return "", err
	}

	perm := &drive.Permission{
		Type: "anyone",
		Role: "reader",
	}

	_, err = a.srv.Permissions.Create(uploadedFile.Id, perm).Context(ctx).Do()
	if err != nil {
		slog.Error("failed on creating permission to uploaded file in google drive", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
		return "", err
	}

	slog.Debug("UploadFile completed", slog.String("rqID", rqID), slog.String("op", op), slog.String("fileID", uploadedFile.Id))

	return fmt.Sprintf(downloadLinkTemplate, uploadedFile.Id), nil
}

// CleanupReports deletes shared reports older than the configured TTL.
func (a *GoogleDriveApi) CleanupReports(ctx context.Context, progress *model.JobProgress) error {
	rqID := utils.GetRequestIDFromCtx(ctx)
	op := "GoogleDriveApi.CleanupReports"

	slog.Debug("CleanupReports start", slog.String("rqID", rqID), slog.String("op", op))

	deadline := a.now().Add(-a.fileTTL)
	query := fmt.Sprintf("name contains '%s' and trashed = false", reportNamePrefix)

	totalFiles := 0
	pageToken := ""
	for {
		call := a.srv.Files.List().
			Q(query).
			Fields("nextPageToken, files(id, name, createdTime)").
			Context(ctx)
		if pageToken != "" {
			call = call.PageToken(pageToken)
		}

		r, err := call.Do()
		if err != nil {
			slog.Error("failed on getting files", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
			return err
		}

		totalFiles += len(r.Files)
		for _, f := range r.Files {
			createdTime, err := time.Parse(time.RFC3339, f.CreatedTime)
			if err != nil {
				slog.Error(
					"failed parse time",
					slog.String("rqID", rqID),
					slog.String("op", op),
					slog.String("err", err.Error()),
					slog.String("fileID", f.Id),
					slog.String("createdTime", f.CreatedTime),
				)
				continue
			}

			if !createdTime.Before(deadline) {
				continue
			}

			if err = a.srv.Files.Delete(f.Id).Context(ctx).Do(); err != nil {
				slog.Error(
					"failed delete file",
					slog.String("rqID", rqID),
					slog.String("op", op),
					slog.String("err", err.Error()),
					slog.String("fileID", f.Id),
				)
				progress.Failure(f.Name)
				continue
			}
			progress.Success()
		}

		if r.NextPageToken == "" {
			break
		}
		pageToken = r.NextPageToken
	}

	if err := a.srv.Files.EmptyTrash().Context(ctx).Do(); err != nil {
		slog.Error("failed empty trash", slog.String("rqID", rqID), slog.String("op", op), slog.String("err", err.Error()))
	}

	slog.Info("delete old files done", slog.String("rqID", rqID), slog.Int("deletedFiles", progress.Succeeded), slog.Int("remainingFiles", totalFiles-progress.Succeeded))

	return nil
}
