package searchclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
)

// UploadRaw uploads content as a raw file to the remote store's staging
// area, returning its raw resource ID. displayName is trimmed of leading
// whitespace before the request is built — trailing whitespace is left
// alone, matching the remote store's own display-name normalization
// (SPEC_FULL.md C2 behavioral contract).
func (c *Client) UploadRaw(ctx context.Context, r io.Reader, size int64, displayName string) (string, error) {
	displayName = strings.TrimLeft(displayName, " \t\n\r")

	c.logger.Info("uploading raw file",
		slog.String("display_name", displayName),
		slog.Int64("size", size),
	)

	headers := http.Header{
		"Content-Length": []string{strconv.FormatInt(size, 10)},
		"X-Upload-Kind":  []string{"raw-file"},
		"X-Display-Name": []string{displayName},
	}

	resp, err := c.DoWithHeaders(ctx, http.MethodPost, "/upload/raw", r, headers)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var rf rawFileResponse
	if err := json.NewDecoder(resp.Body).Decode(&rf); err != nil {
		return "", fmt.Errorf("searchclient: decoding upload response: %w", err)
	}

	return rf.Name, nil
}
