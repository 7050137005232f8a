package pgdb

import (
	"encoding/base64"
	"strconv"
	"strings"

	"github.com/DRSN-tech/product-service/pkg/e"
)

const pageTokenPrefix = "id:"

// encodePageToken упаковывает последний выданный id в непрозрачный токен страницы.
func encodePageToken(lastID int64) string {
	raw := pageTokenPrefix + strconv.FormatInt(lastID, 10)
	return base64.URLEncoding.EncodeToString([]byte(raw))
}

// decodePageToken разбирает токен страницы; пустой токен означает начало выборки.
func decodePageToken(token string) (int64, error) {
	if token == "" {
		return 0, nil
	}

	raw, err := base64.URLEncoding.DecodeString(token)
	if err != nil {
		return 0, e.ErrInvalidPageToken
	}

	s := string(raw)
	if !strings.HasPrefix(s, pageTokenPrefix) {
		return 0, e.ErrInvalidPageToken
	}

	id, err := strconv.ParseInt(strings.TrimPrefix(s, pageTokenPrefix), 10, 64)
	if err != nil || id < 0 {
		return 0, e.ErrInvalidPageToken
	}

	return id, nil
}
