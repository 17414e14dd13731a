package upload

import (
	"context"
	"fmt"
	"os"
	"sync"
	"time"

	"golang.org/x/oauth2"
	"google.golang.org/api/drive/v3"
	"google.golang.org/api/googleapi"
	"google.golang.org/api/option"

	xlog "github.com/nvrhub/hieasy/internal/log"
)

const driveFolderMIME = "application/vnd.google-apps.folder"

// Drive uploads segments into a Drive folder through a service account.
// The device-flow OAuth dance that provisions user credentials lives
// outside this process; here a credentials file or a ready token source is
// all that is accepted.
type Drive struct {
	svc      *drive.Service
	folderID string

	mu    sync.Mutex
	cache map[string]string // subfolder name -> id
}

// NewDrive authenticates with a service-account credentials file.
func NewDrive(ctx context.Context, credentialsFile, folderID string) (*Drive, error) {
	if _, err := os.Stat(credentialsFile); err != nil {
		return nil, fmt.Errorf("upload: drive credentials: %w", err)
	}
	svc, err := drive.NewService(ctx,
		option.WithCredentialsFile(credentialsFile),
		option.WithScopes(drive.DriveFileScope),
	)
	if err != nil {
		return nil, fmt.Errorf("upload: drive service: %w", err)
	}
	l := xlog.WithComponent("upload")
	l.Info().
		Str(xlog.FieldEvent, "upload.drive_ready").
		Msg("drive uploader authenticated")
	return &Drive{svc: svc, folderID: folderID, cache: make(map[string]string)}, nil
}

// NewDriveWithTokenSource authenticates with a caller-provided token
// source, for deployments that completed the OAuth flow elsewhere.
func NewDriveWithTokenSource(ctx context.Context, ts oauth2.TokenSource, folderID string) (*Drive, error) {
	svc, err := drive.NewService(ctx, option.WithTokenSource(ts))
	if err != nil {
		return nil, fmt.Errorf("upload: drive service: %w", err)
	}
	return &Drive{svc: svc, folderID: folderID, cache: make(map[string]string)}, nil
}

// EnsureSubfolder returns the id of the named folder under the upload
// root, creating it on first use. Results are cached per process.
func (d *Drive) EnsureSubfolder(ctx context.Context, name string) (string, error) {
	d.mu.Lock()
	if id, ok := d.cache[name]; ok {
		d.mu.Unlock()
		return id, nil
	}
	d.mu.Unlock()

	if d.folderID == "" {
		return "", nil
	}

	q := fmt.Sprintf("name='%s' and '%s' in parents and mimeType='%s' and trashed=false",
		name, d.folderID, driveFolderMIME)
	list, err := d.svc.Files.List().Q(q).Fields("files(id)").Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("upload: search folder %s: %w", name, err)
	}

	var id string
	if len(list.Files) > 0 {
		id = list.Files[0].Id
	} else {
		created, err := d.svc.Files.Create(&drive.File{
			Name:     name,
			MimeType: driveFolderMIME,
			Parents:  []string{d.folderID},
		}).Fields("id").Context(ctx).Do()
		if err != nil {
			return "", fmt.Errorf("upload: create folder %s: %w", name, err)
		}
		id = created.Id
	}

	d.mu.Lock()
	d.cache[name] = id
	d.mu.Unlock()
	return id, nil
}

// Upload sends one local file, resumable, and returns the Drive file id.
func (d *Drive) Upload(ctx context.Context, path, filename, folderID string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("upload: open %s: %w", path, err)
	}
	defer f.Close()

	meta := &drive.File{Name: filename}
	if folderID != "" {
		meta.Parents = []string{folderID}
	}
	created, err := d.svc.Files.Create(meta).
		Media(f, googleapi.ChunkSize(8<<20)).
		Fields("id,name,size").
		Context(ctx).Do()
	if err != nil {
		return "", fmt.Errorf("upload: drive create %s: %w", filename, err)
	}
	return created.Id, nil
}

// ListFiles returns the newest files in a folder.
func (d *Drive) ListFiles(ctx context.Context, folderID string, limit int) ([]RemoteFile, error) {
	if folderID == "" {
		folderID = d.folderID
	}
	q := "trashed=false"
	if folderID != "" {
		q = fmt.Sprintf("'%s' in parents and trashed=false", folderID)
	}
	list, err := d.svc.Files.List().
		Q(q).
		PageSize(int64(limit)).
		Fields("files(id,name,size,createdTime)").
		OrderBy("createdTime desc").
		Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("upload: drive list: %w", err)
	}
	out := make([]RemoteFile, 0, len(list.Files))
	for _, f := range list.Files {
		created, _ := time.Parse(time.RFC3339, f.CreatedTime)
		out = append(out, RemoteFile{ID: f.Id, Name: f.Name, Size: f.Size, Created: created})
	}
	return out, nil
}

// Delete removes a remote file.
func (d *Drive) Delete(ctx context.Context, fileID string) error {
	if err := d.svc.Files.Delete(fileID).Context(ctx).Do(); err != nil {
		return fmt.Errorf("upload: drive delete %s: %w", fileID, err)
	}
	return nil
}
