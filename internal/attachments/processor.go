// Package attachments downloads edital documents and moves them into durable
// object storage, one attachment at a time.
package attachments

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/licitatech/pncp-harvester/internal/metrics"
	"github.com/licitatech/pncp-harvester/internal/pncp"
	"github.com/licitatech/pncp-harvester/internal/pncpapi"
)

const defaultStoragePrefix = "editais"

var nameSanitizer = strings.NewReplacer(
	"<", "_", ">", "_", ":", "_", `"`, "_",
	"/", "_", `\`, "_", "|", "_", "?", "_", "*", "_",
)

// Processor transfers attachment bytes from the portal into the object store.
// Every outcome, success or failure, is reported on the returned Attachment;
// Process never fails the caller.
type Processor struct {
	fetcher pncp.Fetcher
	store   pncp.ObjectStore
	prefix  string
	clock   pncp.Clock
	logger  *zap.Logger
}

// New builds a Processor. An empty prefix falls back to "editais".
func New(fetcher pncp.Fetcher, store pncp.ObjectStore, prefix string, clock pncp.Clock, logger *zap.Logger) *Processor {
	if prefix == "" {
		prefix = defaultStoragePrefix
	}
	metrics.Init()
	return &Processor{
		fetcher: fetcher,
		store:   store,
		prefix:  prefix,
		clock:   clock,
		logger:  logger.Named("attachments"),
	}
}

// Process handles a single attachment descriptor for the record naturalID.
// With doUpload false the descriptor is recorded without touching the network
// or the store.
func (p *Processor) Process(ctx context.Context, ref pncpapi.FileRef, naturalID string, doUpload bool) pncp.Attachment {
	att := pncp.Attachment{
		DisplayName: ref.Title,
		SourceURL:   ref.URL,
		ByteSize:    ref.ByteSize,
	}

	if ref.URL == "" {
		att.Error = "no source url"
		return att
	}
	if !doUpload {
		return att
	}

	resp, err := p.fetcher.Fetch(ctx, ref.URL)
	if err != nil {
		att.Error = fmt.Sprintf("download: %v", err)
		p.logger.Warn("attachment download failed",
			zap.String("natural_id", naturalID), zap.String("url", ref.URL), zap.Error(err))
		return att
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		att.Error = fmt.Sprintf("download: status %d", resp.StatusCode)
		return att
	}
	att.ByteSize = int64(len(resp.Body))

	path := ObjectPath(p.prefix, naturalID, ref.Title)
	contentType := resp.Headers.Get("Content-Type")
	if contentType == "" {
		contentType = http.DetectContentType(resp.Body)
	}

	url, err := p.store.Put(ctx, path, contentType, resp.Body)
	if errors.Is(err, pncp.ErrObjectExists) {
		// One remediation attempt: clear the stale object, write again.
		if delErr := p.store.Delete(ctx, path); delErr != nil {
			att.Error = fmt.Sprintf("replace existing object: %v", delErr)
			metrics.ObserveAttachmentUpload(false)
			return att
		}
		url, err = p.store.Put(ctx, path, contentType, resp.Body)
	}
	metrics.ObserveAttachmentUpload(err == nil)
	if err != nil {
		att.Error = fmt.Sprintf("upload: %v", err)
		p.logger.Warn("attachment upload failed",
			zap.String("natural_id", naturalID), zap.String("path", path), zap.Error(err))
		return att
	}

	att.StorageURL = url
	att.UploadSucceeded = true
	att.UploadedAt = p.clock.Now()
	return att
}

// ObjectPath derives the deterministic storage path for an attachment:
// <prefix>/<naturalID>/<sanitized file name>. The natural id's own slashes are
// kept as path segments. An empty prefix falls back to "editais".
func ObjectPath(prefix, naturalID, name string) string {
	if prefix == "" {
		prefix = defaultStoragePrefix
	}
	if name == "" {
		name = "arquivo"
	}
	return fmt.Sprintf("%s/%s/%s", prefix, naturalID, nameSanitizer.Replace(name))
}
