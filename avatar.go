package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
)

const (
	maxAvatarBytes = 5 << 20
	avatarSize     = 512
	avatarQuality  = 85
)

// UploadAvatar normalizes the image to a square JPEG, stores it and points
// the profile at it. The previous avatar blob is removed afterwards.
func (a *App) UploadAvatar(ctx context.Context, caller uuid.UUID, r io.Reader) (*User, error) {
	img, err := imaging.Decode(r, imaging.AutoOrientation(true))
	if err != nil {
		return nil, validationError("file is not a readable image")
	}
	thumb := imaging.Fill(img, avatarSize, avatarSize, imaging.Center, imaging.Lanczos)

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, thumb, imaging.JPEG, imaging.JPEGQuality(avatarQuality)); err != nil {
		return nil, backendError(err, "could not encode avatar")
	}

	key := fmt.Sprintf("profile-pictures/%s_%d.jpg", caller, time.Now().UnixNano())
	url, err := a.blobs.Put(ctx, key, "image/jpeg", &buf)
	if err != nil {
		return nil, backendError(err, "could not store avatar")
	}

	previous, err := a.store.SetAvatar(ctx, caller, &url, &key)
	if err != nil {
		if delErr := a.blobs.Delete(ctx, key); delErr != nil {
			slog.Warn("could not remove unused avatar", "key", key, "error", delErr)
		}
		return nil, backendError(err, "could not save avatar")
	}
	a.deleteBlob(ctx, previous)
	return a.GetUser(ctx, caller)
}

// RemoveAvatar clears the profile picture and deletes its blob.
func (a *App) RemoveAvatar(ctx context.Context, caller uuid.UUID) (*User, error) {
	previous, err := a.store.SetAvatar(ctx, caller, nil, nil)
	if err != nil {
		return nil, backendError(err, "could not clear avatar")
	}
	a.deleteBlob(ctx, previous)
	return a.GetUser(ctx, caller)
}

func (a *App) deleteBlob(ctx context.Context, key *string) {
	if key == nil || *key == "" {
		return
	}
	if err := a.blobs.Delete(ctx, *key); err != nil {
		slog.Warn("could not delete old avatar", "key", *key, "error", err)
	}
}

// sniffImage accepts JPEG and PNG only, judged by content not filename.
func sniffImage(f io.ReadSeeker) error {
	head := make([]byte, 512)
	n, _ := f.Read(head)
	switch http.DetectContentType(head[:n]) {
	case "image/jpeg", "image/png":
	default:
		return validationError("only JPEG and PNG images are allowed")
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return backendError(err, "could not read upload")
	}
	return nil
}

// POST /me/avatar  (multipart form, field name: "file")
func uploadAvatarHandler(a *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, err := callerID(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}

		r.Body = http.MaxBytesReader(w, r.Body, maxAvatarBytes+(1<<20))
		if err := r.ParseMultipartForm(maxAvatarBytes); err != nil {
			writeError(w, validationError("file too large or missing"))
			return
		}
		f, hdr, err := r.FormFile("file")
		if err != nil {
			writeError(w, validationError("missing file"))
			return
		}
		defer f.Close()
		if hdr.Size > maxAvatarBytes {
			writeError(w, validationError("file too large"))
			return
		}
		if err := sniffImage(f); err != nil {
			writeError(w, err)
			return
		}

		u, err := a.UploadAvatar(r.Context(), caller, f)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, accountView(u))
	}
}

// DELETE /me/avatar
func removeAvatarHandler(a *App) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, err := callerID(r.Context())
		if err != nil {
			writeError(w, err)
			return
		}
		u, err := a.RemoveAvatar(r.Context(), caller)
		if err != nil {
			writeError(w, err)
			return
		}
		writeJSON(w, http.StatusOK, accountView(u))
	}
}
