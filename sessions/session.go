package sessions

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"

	"github.com/jrsteele09/ugate-admin/token"
	"github.com/jrsteele09/ugate-admin/users"
)

// Persisted keys. They match the keys the web console keeps in local storage
// so a record can be moved between the two.
const (
	KeyAccessToken  = "ugate_access_token"
	KeyRefreshToken = "ugate_refresh_token"
	KeyUserInfo     = "ugate_user_info"
	KeyTokenExpiry  = "ugate_token_expiry"
)

// Keys lists every persisted key
var Keys = []string{KeyAccessToken, KeyRefreshToken, KeyUserInfo, KeyTokenExpiry}

// Fields is the raw key/value form of a record as held by a Repo
type Fields map[string]string

// Record is the persisted session. All four fields exist together or the
// session does not exist.
type Record struct {
	AccessToken       string
	RefreshToken      string
	UserProfileJSON   string
	ExpiryEpochMillis int64
}

// ExpiresAt returns the access token expiry instant
func (r Record) ExpiresAt() time.Time {
	return time.UnixMilli(r.ExpiryEpochMillis)
}

// Pair returns the stored tokens
func (r Record) Pair() token.Pair {
	return token.Pair{
		AccessToken:  r.AccessToken,
		RefreshToken: r.RefreshToken,
		TokenType:    token.BearerType,
	}
}

// Profile decodes the stored user profile. Records returned by Store.Read
// always decode.
func (r Record) Profile() *users.Profile {
	var p users.Profile
	if err := json.Unmarshal([]byte(r.UserProfileJSON), &p); err != nil {
		return nil
	}
	return &p
}

func (r Record) fields() Fields {
	return Fields{
		KeyAccessToken:  r.AccessToken,
		KeyRefreshToken: r.RefreshToken,
		KeyUserInfo:     r.UserProfileJSON,
		KeyTokenExpiry:  strconv.FormatInt(r.ExpiryEpochMillis, 10),
	}
}

// recordState classifies what a backend returned
type recordState int

const (
	recordAbsent recordState = iota
	recordComplete
	recordCorrupt
)

// parseFields turns backend fields into a Record. Missing, empty or
// unparsable fields mark the record corrupt unless nothing at all is stored.
func parseFields(f Fields) (Record, recordState) {
	present := 0
	for _, k := range Keys {
		if strings.TrimSpace(f[k]) != "" {
			present++
		}
	}
	if present == 0 {
		return Record{}, recordAbsent
	}
	if present != len(Keys) {
		return Record{}, recordCorrupt
	}

	expiry, err := strconv.ParseInt(strings.TrimSpace(f[KeyTokenExpiry]), 10, 64)
	if err != nil {
		return Record{}, recordCorrupt
	}

	var profile users.Profile
	if err := json.Unmarshal([]byte(f[KeyUserInfo]), &profile); err != nil {
		return Record{}, recordCorrupt
	}

	return Record{
		AccessToken:       f[KeyAccessToken],
		RefreshToken:      f[KeyRefreshToken],
		UserProfileJSON:   f[KeyUserInfo],
		ExpiryEpochMillis: expiry,
	}, recordComplete
}

func cloneFields(f Fields) Fields {
	if f == nil {
		return nil
	}
	c := make(Fields, len(f))
	for k, v := range f {
		c[k] = v
	}
	return c
}
