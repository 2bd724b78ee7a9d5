package registry

import (
	"context"
	"strings"
)

// FetchFileRequest names the descriptor file to read.
type FetchFileRequest struct {
	FilePath string `json:"filePath"`
}

// FetchFileResult holds the raw descriptor text, nil when the object is empty.
type FetchFileResult struct {
	AdapterFileData *string `json:"adapterFileData"`
}

// FetchFile returns the content of a stored descriptor file.
func (s *Service) FetchFile(ctx context.Context, bucket string, req *FetchFileRequest) (*FetchFileResult, error) {
	log := s.logger.WithContext(ctx)

	if req == nil {
		return nil, BadRequest("Request body is missing.")
	}
	if strings.TrimSpace(req.FilePath) == "" {
		return nil, BadRequest("Missing filePath field in request body.")
	}
	if bucket == "" {
		log.Error("adapter types bucket is not configured")
		return nil, Internal("Adapter Types bucket is not configured.", nil)
	}

	res := s.objects.GetObject(ctx, bucket, req.FilePath)
	if res.Err != nil {
		log.Error("adapter type file could not be read", "key", req.FilePath, "error", res.Err)
		return nil, Internal("Adapter Type file could not be read.", res.Err)
	}
	return &FetchFileResult{AdapterFileData: res.Data}, nil
}
