package pagination

import (
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Cursor is the opaque token for paging through a dataset's records, with
// short field names to keep the token small. It is serialized to minified
// JSON and encoded with URL-safe base64.
//
// Fields:
//   - v:   cursor schema version
//   - did: dataset ID
//   - fp:  dataset fingerprint prefix; a replaced dataset invalidates the cursor
//   - fh:  filter hash; changing filters mid-pagination invalidates the cursor
//   - off: record offset into the filtered view
//   - ps:  page size in records
//   - iat: issued-at timestamp (unix seconds)
type Cursor struct {
	V   int    `json:"v"`
	Did string `json:"did"`
	Fp  string `json:"fp"`
	Fh  string `json:"fh,omitempty"`
	Off int    `json:"off"`
	Ps  int    `json:"ps"`
	Iat int64  `json:"iat"`
}

// EncodeCursor serializes and encodes the cursor as URL-safe base64 (without padding).
func EncodeCursor(c Cursor) (string, error) {
	if err := validate(&c); err != nil {
		return "", err
	}
	b, err := json.Marshal(c)
	if err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(b), nil
}

// DecodeCursor decodes a URL-safe base64 token and parses the JSON cursor.
func DecodeCursor(token string) (*Cursor, error) {
	t := strings.TrimSpace(token)
	if t == "" {
		return nil, errors.New("cursor: empty token")
	}
	data, err := base64.RawURLEncoding.DecodeString(t)
	if err != nil {
		return nil, fmt.Errorf("cursor: invalid base64: %w", err)
	}
	var c Cursor
	if err := json.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("cursor: invalid json: %w", err)
	}
	if err := validate(&c); err != nil {
		return nil, err
	}
	return &c, nil
}

// Matches reports whether the cursor was issued for this dataset and filter.
func (c *Cursor) Matches(datasetID, fingerprint, filterHash string) bool {
	return c.Did == datasetID && strings.HasPrefix(fingerprint, c.Fp) && c.Fh == filterHash
}

// FingerprintPrefix shortens a dataset fingerprint for embedding in cursors.
func FingerprintPrefix(fp string) string {
	if len(fp) > 16 {
		return fp[:16]
	}
	return fp
}

// FilterHash returns a stable hash of a filter selection. Value order within
// a dimension does not matter.
func FilterHash(dims map[string][]string) string {
	keys := make([]string, 0, len(dims))
	for k, v := range dims {
		if len(v) > 0 {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return ""
	}
	sort.Strings(keys)
	h := sha256.New()
	for _, k := range keys {
		vals := append([]string(nil), dims[k]...)
		sort.Strings(vals)
		fmt.Fprintf(h, "%s=%q;", k, vals)
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}

func validate(c *Cursor) error {
	if c.V <= 0 {
		c.V = 1
	}
	if c.Iat == 0 {
		c.Iat = time.Now().Unix()
	}
	if strings.TrimSpace(c.Did) == "" {
		return errors.New("cursor: did (dataset id) required")
	}
	if strings.TrimSpace(c.Fp) == "" {
		return errors.New("cursor: fp (fingerprint) required")
	}
	if c.Off < 0 {
		return errors.New("cursor: off must be >= 0")
	}
	if c.Ps <= 0 {
		return errors.New("cursor: ps must be > 0")
	}
	return nil
}

// NextOffset computes the next offset after returning n records.
func NextOffset(curr, n int) int {
	if curr < 0 {
		curr = 0
	}
	if n <= 0 {
		return curr
	}
	return curr + n
}
