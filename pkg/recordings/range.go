package recordings

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
)

// ServeRange writes key's contents to w, honoring a single-range `Range`
// request header with a 206 Partial Content response, per base spec §6's
// media-playback requirement and §8's testable property 7. Requests
// without a Range header get the full object with a 200.
func ServeRange(ctx context.Context, w http.ResponseWriter, r *http.Request, store ObjectStore, key, filename string) error {
	size, contentType, _, err := store.Stat(ctx, key)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			http.NotFound(w, r)
			return nil
		}
		return err
	}

	w.Header().Set("Accept-Ranges", "bytes")
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`inline; filename=%q`, filename))

	start, end, partial, rangeErr := parseRange(r.Header.Get("Range"), size)
	if rangeErr != nil {
		w.Header().Set("Content-Range", fmt.Sprintf("bytes */%d", size))
		w.WriteHeader(http.StatusRequestedRangeNotSatisfiable)
		return nil
	}

	length := end - start + 1
	body, err := store.OpenRange(ctx, key, start, length)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			http.NotFound(w, r)
			return nil
		}
		return err
	}
	defer body.Close()

	w.Header().Set("Content-Length", strconv.FormatInt(length, 10))
	if partial {
		w.Header().Set("Content-Range", fmt.Sprintf("bytes %d-%d/%d", start, end, size))
		w.WriteHeader(http.StatusPartialContent)
	} else {
		w.WriteHeader(http.StatusOK)
	}

	_, err = io.Copy(w, body)
	return err
}

// parseRange parses a single-range "bytes=start-end" header, the only form
// base spec §6 requires. Multi-range requests fall back to serving the
// whole object, matching common player behavior.
func parseRange(header string, size int64) (start, end int64, partial bool, err error) {
	if header == "" {
		return 0, size - 1, false, nil
	}
	if !strings.HasPrefix(header, "bytes=") || strings.Contains(header, ",") {
		return 0, size - 1, false, nil
	}
	spec := strings.TrimPrefix(header, "bytes=")
	parts := strings.SplitN(spec, "-", 2)
	if len(parts) != 2 {
		return 0, 0, false, fmt.Errorf("malformed range")
	}

	if parts[0] == "" {
		// suffix range: "-N" means the last N bytes
		suffixLen, convErr := strconv.ParseInt(parts[1], 10, 64)
		if convErr != nil || suffixLen <= 0 {
			return 0, 0, false, fmt.Errorf("malformed suffix range")
		}
		if suffixLen > size {
			suffixLen = size
		}
		return size - suffixLen, size - 1, true, nil
	}

	start, convErr := strconv.ParseInt(parts[0], 10, 64)
	if convErr != nil || start < 0 || start >= size {
		return 0, 0, false, fmt.Errorf("range start out of bounds")
	}
	if parts[1] == "" {
		return start, size - 1, true, nil
	}
	end, convErr = strconv.ParseInt(parts[1], 10, 64)
	if convErr != nil || end < start {
		return 0, 0, false, fmt.Errorf("malformed range end")
	}
	if end >= size {
		end = size - 1
	}
	return start, end, true, nil
}
