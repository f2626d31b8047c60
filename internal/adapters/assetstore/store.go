// Package assetstore resolves uploaded images and attachments from their metadata rows and
// a filesystem root.
package assetstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"strings"

	"github.com/target/bulkmailer/internal/core"
	"github.com/target/bulkmailer/internal/domain/model"
)

// DefaultMaxBytes caps how much of one file is read into memory.
const DefaultMaxBytes = 32 << 20

// Options configures a Store.
type Options struct {
	Repo core.AssetRepository // Required
	// FS holds the asset files; storage paths are relative to its root. Root is used when FS is nil.
	FS     fs.FS
	Root   string
	Logger *slog.Logger
	// MaxBytes bounds a read. Larger files are truncated to MaxBytes+1 bytes so callers
	// can detect and reject them without loading the whole file.
	MaxBytes int64
}

// Store implements core.AssetLookup.
type Store struct {
	repo     core.AssetRepository
	fsys     fs.FS
	logger   *slog.Logger
	maxBytes int64
}

var _ core.AssetLookup = (*Store)(nil)

// New constructs a Store.
func New(opts Options) (*Store, error) {
	if opts.Repo == nil {
		return nil, errors.New("AssetRepository is required")
	}
	fsys := opts.FS
	if fsys == nil {
		if strings.TrimSpace(opts.Root) == "" {
			return nil, errors.New("assets root is required")
		}
		fsys = os.DirFS(opts.Root)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxBytes := opts.MaxBytes
	if maxBytes <= 0 {
		maxBytes = DefaultMaxBytes
	}
	return &Store{
		repo:     opts.Repo,
		fsys:     fsys,
		logger:   logger.With("component", "asset_store"),
		maxBytes: maxBytes,
	}, nil
}

// Resolve loads the asset row and its bytes. Missing rows, missing files and storage
// paths that escape the root all report core.ErrAssetNotFound.
func (s *Store) Resolve(ctx context.Context, ref core.AssetRef) (*model.ResolvedAsset, error) {
	asset, err := s.repo.GetByFileID(ctx, ref)
	if err != nil {
		return nil, err
	}

	name, ok := cleanPath(asset.StoragePath)
	if !ok {
		s.logger.WarnContext(ctx, "asset storage path rejected",
			"file_id", asset.FileID, "storage_path", asset.StoragePath)
		return nil, fmt.Errorf("%w: invalid storage path for %s", core.ErrAssetNotFound, asset.FileID)
	}

	data, err := s.read(name)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("%w: file for %s is missing", core.ErrAssetNotFound, asset.FileID)
	}
	if err != nil {
		return nil, fmt.Errorf("read asset %s: %w", asset.FileID, err)
	}

	filename := asset.Filename
	if filename == "" {
		filename = path.Base(name)
	}
	return &model.ResolvedAsset{
		FileID:   asset.FileID,
		Filename: filename,
		MIMEType: asset.MIMEType,
		Data:     data,
	}, nil
}

func (s *Store) read(name string) ([]byte, error) {
	f, err := s.fsys.Open(name)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return io.ReadAll(io.LimitReader(f, s.maxBytes+1))
}

// cleanPath turns a stored path into an fs.FS name, refusing absolute or escaping paths.
func cleanPath(p string) (string, bool) {
	p = strings.ReplaceAll(strings.TrimSpace(p), "\\", "/")
	if p == "" || strings.HasPrefix(p, "/") {
		return "", false
	}
	name := path.Clean(p)
	if !fs.ValidPath(name) || name == "." {
		return "", false
	}
	return name, true
}
