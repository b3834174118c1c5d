package searchclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// ImportIntoStore starts an asynchronous job importing a previously
// uploaded raw file into a named store. The returned Operation is polled
// with AwaitOperation.
func (c *Client) ImportIntoStore(ctx context.Context, rawID, store string) (Operation, error) {
	c.logger.Info("importing raw file into store",
		slog.String("raw_id", rawID),
		slog.String("store", store),
	)

	path := fmt.Sprintf("/stores/%s:import", url.PathEscape(store))

	body, err := json.Marshal(importRequest{RawFile: rawID})
	if err != nil {
		return Operation{}, fmt.Errorf("searchclient: marshaling import request: %w", err)
	}

	resp, err := c.Do(ctx, http.MethodPost, path, bytes.NewReader(body))
	if err != nil {
		return Operation{}, err
	}
	defer resp.Body.Close()

	var op Operation
	if err := json.NewDecoder(resp.Body).Decode(&op); err != nil {
		return Operation{}, fmt.Errorf("searchclient: decoding import response: %w", err)
	}

	return op, nil
}

// operationPollInterval is how often AwaitOperation re-checks an
// in-progress operation. It does not participate in the retry/backoff
// policy — it's a polling cadence, not a failure response.
const operationPollInterval = 2 * time.Second

// AwaitOperation polls op until it completes or timeout elapses, returning
// the imported document's ID. Each poll round trip still goes through the
// client's own retry loop for transient failures.
func (c *Client) AwaitOperation(ctx context.Context, op Operation, timeout time.Duration) (string, error) {
	deadline := time.Now().Add(timeout)

	for {
		if op.Done {
			if op.ErrorMsg != "" {
				return "", fmt.Errorf("searchclient: operation %s failed: %s", op.Name, op.ErrorMsg)
			}

			return op.ResultDocID, nil
		}

		if time.Now().After(deadline) {
			return "", fmt.Errorf("searchclient: operation %s did not complete within %s", op.Name, timeout)
		}

		if err := timeSleep(ctx, operationPollInterval); err != nil {
			return "", fmt.Errorf("searchclient: waiting for operation %s: %w", op.Name, err)
		}

		resp, err := c.Do(ctx, http.MethodGet, "/"+op.Name, nil)
		if err != nil {
			return "", err
		}

		if decErr := json.NewDecoder(resp.Body).Decode(&op); decErr != nil {
			resp.Body.Close()
			return "", fmt.Errorf("searchclient: decoding operation status: %w", decErr)
		}

		resp.Body.Close()
	}
}

// GetDocument reports whether docID is still present in store. A 404
// response is treated as found=false, nil — not an error — matching the
// idempotent-delete convention used elsewhere in this package.
func (c *Client) GetDocument(ctx context.Context, store, docID string) (bool, error) {
	path := fmt.Sprintf("/stores/%s/documents/%s", url.PathEscape(store), url.PathEscape(docID))

	resp, err := c.Do(ctx, http.MethodGet, path, nil)
	if err != nil {
		var remoteErr *RemoteError
		if errors.As(err, &remoteErr) && remoteErr.StatusCode == http.StatusNotFound {
			return false, nil
		}

		return false, err
	}
	defer resp.Body.Close()

	return true, nil
}

// ListStoreDocuments returns every document currently in store, following
// pagination until the server stops returning a NextPageToken.
func (c *Client) ListStoreDocuments(ctx context.Context, store string) ([]DocumentRef, error) {
	var all []DocumentRef

	pageToken := ""

	for {
		path := fmt.Sprintf("/stores/%s/documents", url.PathEscape(store))
		if pageToken != "" {
			path += "?pageToken=" + url.QueryEscape(pageToken)
		}

		resp, err := c.Do(ctx, http.MethodGet, path, nil)
		if err != nil {
			return nil, err
		}

		var page listDocumentsResponse
		decErr := json.NewDecoder(resp.Body).Decode(&page)
		resp.Body.Close()

		if decErr != nil {
			return nil, fmt.Errorf("searchclient: decoding document list page: %w", decErr)
		}

		all = append(all, page.Documents...)

		if page.NextPageToken == "" {
			return all, nil
		}

		pageToken = page.NextPageToken
	}
}

// DeleteDocument removes docName from store. A 404 response is treated as
// success (idempotent delete, SPEC_FULL.md C2 behavioral contract). force
// is forwarded as a query parameter for stores that require it to delete a
// document still referenced by an active retrieval session.
func (c *Client) DeleteDocument(ctx context.Context, store, docName string, force bool) error {
	path := fmt.Sprintf("/stores/%s/documents/%s", url.PathEscape(store), url.PathEscape(docName))
	if force {
		path += "?force=true"
	}

	resp, err := c.Do(ctx, http.MethodDelete, path, nil)
	if err != nil {
		var remoteErr *RemoteError
		if errors.As(err, &remoteErr) && remoteErr.StatusCode == http.StatusNotFound {
			return nil
		}

		return err
	}

	resp.Body.Close()

	return nil
}

// DeleteRaw removes a raw uploaded file that was never imported, or was
// already superseded by a replacement upload (the orphan cleanup path,
// SPEC_FULL.md I3). A 404 response is treated as success.
func (c *Client) DeleteRaw(ctx context.Context, rawID string) error {
	path := "/" + rawID

	resp, err := c.Do(ctx, http.MethodDelete, path, nil)
	if err != nil {
		var remoteErr *RemoteError
		if errors.As(err, &remoteErr) && remoteErr.StatusCode == http.StatusNotFound {
			return nil
		}

		return err
	}

	resp.Body.Close()

	return nil
}

// ResolveStore accepts either a bare store name or a fully-qualified
// resource name and returns the canonical resource name, creating the
// store on first use if it does not already exist.
func (c *Client) ResolveStore(ctx context.Context, nameOrResource string) (string, error) {
	name := strings.TrimPrefix(nameOrResource, "stores/")
	path := "/stores/" + url.PathEscape(name)

	resp, err := c.Do(ctx, http.MethodGet, path, nil)
	if err == nil {
		defer resp.Body.Close()

		var sr storeResponse
		if decErr := json.NewDecoder(resp.Body).Decode(&sr); decErr != nil {
			return "", fmt.Errorf("searchclient: decoding store response: %w", decErr)
		}

		return sr.Name, nil
	}

	var remoteErr *RemoteError
	if !errors.As(err, &remoteErr) || remoteErr.StatusCode != http.StatusNotFound {
		return "", err
	}

	createResp, err := c.Do(ctx, http.MethodPost, "/stores", bytes.NewReader([]byte(`{"displayName":"`+name+`"}`)))
	if err != nil {
		return "", fmt.Errorf("searchclient: creating store %q: %w", nameOrResource, err)
	}
	defer createResp.Body.Close()

	var sr storeResponse
	if err := json.NewDecoder(createResp.Body).Decode(&sr); err != nil {
		return "", fmt.Errorf("searchclient: decoding created store response: %w", err)
	}

	return sr.Name, nil
}
