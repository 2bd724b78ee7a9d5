package registry

import (
	"context"
	"crypto/sha512"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"strings"

	"go.opentelemetry.io/otel/attribute"

	"github.com/nimburion/adapter-registry/pkg/adaptertype"
	"github.com/nimburion/adapter-registry/pkg/observability/metrics"
	"github.com/nimburion/adapter-registry/pkg/observability/tracing"
	"github.com/nimburion/adapter-registry/pkg/version"
)

// UploadRequest carries a base64 encoded descriptor file and the hex SHA-512
// digest of the decoded bytes.
type UploadRequest struct {
	Data string `json:"data"`
	Hash string `json:"hash"`
}

// UploadResult reports where the descriptor was stored.
type UploadResult struct {
	IsUploaded bool   `json:"isUploaded"`
	Key        string `json:"key"`
}

// Upload verifies and stores a descriptor file at its canonical object key.
// Nothing is written unless the digest matches and the descriptor is valid.
// The index is updated by the ingestion triggered by the new object.
func (s *Service) Upload(ctx context.Context, bucket string, req *UploadRequest) (*UploadResult, error) {
	ctx, span := tracing.StartRegistrySpan(ctx, tracing.SpanOperationUpload)
	res, err := s.upload(ctx, bucket, req)
	switch {
	case err == nil:
		span.SetAttributes(attribute.String("adapter.key", res.Key))
		metrics.RecordUpload(metrics.UploadUploaded)
	case KindOf(err) == KindBadRequest:
		metrics.RecordUpload(metrics.UploadRejected)
	default:
		metrics.RecordUpload(metrics.UploadFailed)
	}
	tracing.End(span, err)
	return res, err
}

func (s *Service) upload(ctx context.Context, bucket string, req *UploadRequest) (*UploadResult, error) {
	log := s.logger.WithContext(ctx)

	if req == nil {
		return nil, BadRequest("Bad Request. Request body is empty.")
	}
	if req.Data == "" || req.Hash == "" {
		return nil, BadRequest("Bad Request. Request body is invalid.")
	}

	content, err := base64.StdEncoding.DecodeString(req.Data)
	if err != nil {
		log.Warn("upload rejected, data is not base64", "error", err)
		return nil, BadRequestWrap("Bad Request. Invalid Adapter Type data.", err)
	}

	digest := sha512.Sum512(content)
	if !strings.EqualFold(hex.EncodeToString(digest[:]), strings.TrimSpace(req.Hash)) {
		log.Warn("upload rejected, hash mismatch", "size", len(content))
		return nil, BadRequest("Bad Request. Invalid Adapter Type data.")
	}

	descriptor, err := adaptertype.Decode("", content)
	if err != nil {
		log.Warn("upload rejected, invalid adapter type", "error", err)
		if errors.Is(err, adaptertype.ErrEmptyContent) {
			return nil, BadRequestWrap("Bad Request. Adapter Type is empty.", err)
		}
		return nil, BadRequestWrap("Bad Request. Adapter Type is invalid.", err)
	}
	if strings.Contains(descriptor.Name, "/") || strings.Contains(descriptor.Version, "/") {
		return nil, BadRequest("Bad Request. Adapter Type is invalid.")
	}
	if !version.Valid(descriptor.Version) {
		log.Warn("upload rejected, version is not comparable", "version", descriptor.Version)
		return nil, BadRequest("Bad Request. Adapter Type version is invalid.")
	}

	if bucket == "" {
		log.Error("adapter types bucket is not configured")
		return nil, Internal("Adapter Types bucket is not configured.", nil)
	}

	key := adaptertype.ObjectKey(descriptor.Name, descriptor.Version)
	put := s.objects.PutObject(ctx, bucket, key, content)
	if put.Err != nil || !put.Data {
		log.Error("adapter type file could not be stored", "key", key, "error", put.Err)
		return nil, Internal("Adapter Type file could not be stored.", put.Err)
	}

	log.Info("adapter type file uploaded", "key", key, "name", descriptor.Name, "version", descriptor.Version)
	return &UploadResult{IsUploaded: true, Key: key}, nil
}
