package pushlog

/*
	Utilities for working with the json-pushes API of hosted Mercurial repos.
*/

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"go.buildbisect.org/infra/go/httputils"
	"go.buildbisect.org/infra/go/skerr"
	"go.buildbisect.org/infra/go/sklog"
	"go.buildbisect.org/infra/go/util"
)

const (
	PUSHES_URL  = "%s/json-pushes?%s"
	DATE_FORMAT = "2006-01-02"

	// MAX_QPS and MAX_BURST bound the requests sent to a single repo.
	MAX_QPS   = rate.Limit(10.0)
	MAX_BURST = 10
)

// ErrEmptyPushlog is returned when a query matches no push, including when the
// server does not know a requested changeset.
var ErrEmptyPushlog = errors.New("empty pushlog")

// Changeset is a single commit of a Push. Only Node is filled unless the push
// was requested with full details.
type Changeset struct {
	Node   string `json:"node"`
	Desc   string `json:"desc"`
	Author string `json:"author"`
}

// UnmarshalJSON accepts both the short form, a bare changeset id, and the
// full form, an object.
func (c *Changeset) UnmarshalJSON(b []byte) error {
	if len(b) > 0 && b[0] == '"' {
		return json.Unmarshal(b, &c.Node)
	}
	type plain Changeset
	return json.Unmarshal(b, (*plain)(c))
}

// Push is a group of changesets pushed together.
type Push struct {
	ID         int
	Date       time.Time
	Changesets []*Changeset
}

// Changeset returns the id of the last changeset of the push.
func (p *Push) Changeset() string {
	if len(p.Changesets) == 0 {
		return ""
	}
	return p.Changesets[len(p.Changesets)-1].Node
}

// String returns the short form of the last changeset.
func (p *Push) String() string {
	cs := p.Changeset()
	if len(cs) > 12 {
		return cs[:12]
	}
	return cs
}

type rawPush struct {
	Changesets []*Changeset `json:"changesets"`
	Date       int64        `json:"date"`
	User       string       `json:"user"`
}

// Query holds the parameters of a json-pushes request. Zero values are
// omitted.
type Query struct {
	Changeset  string
	FromChange string
	ToChange   string
	StartDate  time.Time
	EndDate    time.Time
	StartID    int
	EndID      int
	Full       bool
}

// Encode returns the query string, with keys sorted.
func (q Query) Encode() string {
	v := url.Values{}
	if q.Changeset != "" {
		v.Set("changeset", q.Changeset)
	}
	if q.FromChange != "" {
		v.Set("fromchange", q.FromChange)
	}
	if q.ToChange != "" {
		v.Set("tochange", q.ToChange)
	}
	if !q.StartDate.IsZero() {
		v.Set("startdate", q.StartDate.Format(DATE_FORMAT))
	}
	if !q.EndDate.IsZero() {
		v.Set("enddate", q.EndDate.Format(DATE_FORMAT))
	}
	if q.StartID != 0 || q.EndID != 0 {
		v.Set("startID", strconv.Itoa(q.StartID))
		v.Set("endID", strconv.Itoa(q.EndID))
	}
	if q.Full {
		v.Set("full", "1")
	}
	return v.Encode()
}

// Ref designates a point of a repo history, either by changeset or by date.
// Exactly one of the fields should be set.
type Ref struct {
	Changeset string
	Date      time.Time
}

// IsDate returns true if the Ref designates a date.
func (r Ref) IsDate() bool {
	return r.Changeset == ""
}

func (r Ref) String() string {
	if r.IsDate() {
		return r.Date.Format(DATE_FORMAT)
	}
	return r.Changeset
}

// Repo is an object used for interacting with the pushlog of a single repo.
type Repo struct {
	client *http.Client
	rl     *rate.Limiter
	Branch string
	URL    string
}

// NewRepo creates and returns a new Repo object.
func NewRepo(branch, url string, c *http.Client) *Repo {
	if c == nil {
		c = httputils.NewTimeoutClient()
	}
	return &Repo{
		client: c,
		rl:     rate.NewLimiter(MAX_QPS, MAX_BURST),
		Branch: branch,
		URL:    strings.TrimSuffix(url, "/"),
	}
}

// Pushes issues a raw request to the server and returns the matching pushes
// sorted by push id. The result is never empty: ErrEmptyPushlog is returned
// instead.
func (r *Repo) Pushes(ctx context.Context, q Query) ([]*Push, error) {
	u := fmt.Sprintf(PUSHES_URL, r.URL, q.Encode())
	sklog.Debugf("Using url: %s", u)
	if err := r.rl.Wait(ctx); err != nil {
		return nil, skerr.Wrap(err)
	}
	resp, err := httputils.GetWithContext(ctx, r.client, u)
	if err != nil {
		return nil, skerr.Wrapf(err, "requesting %s", u)
	}
	defer util.Close(resp.Body)

	if resp.StatusCode == http.StatusNotFound {
		var e struct {
			Error string `json:"error"`
		}
		if err := json.NewDecoder(resp.Body).Decode(&e); err == nil && strings.Contains(e.Error, "unknown revision") {
			return nil, skerr.Wrapf(ErrEmptyPushlog, "the url %q returned a 404 error because the push is not in this repo (e.g., not merged yet)", u)
		}
	}
	if resp.StatusCode != http.StatusOK {
		return nil, skerr.Wrap(&httputils.StatusError{
			StatusCode: resp.StatusCode,
			Method:     http.MethodGet,
			URL:        u,
			Body:       httputils.ReadAndClose(resp.Body),
		})
	}

	data := map[string]*rawPush{}
	if err := json.NewDecoder(resp.Body).Decode(&data); err != nil {
		return nil, skerr.Wrapf(err, "decoding pushlog from %s", u)
	}
	if len(data) == 0 {
		return nil, skerr.Wrapf(ErrEmptyPushlog, "the url %q contains no pushlog. Maybe use another range?", u)
	}
	rv := make([]*Push, 0, len(data))
	for key, raw := range data {
		id, err := strconv.Atoi(key)
		if err != nil {
			return nil, skerr.Wrapf(err, "invalid push id %q", key)
		}
		rv = append(rv, &Push{
			ID:         id,
			Date:       time.Unix(raw.Date, 0).UTC(),
			Changesets: raw.Changesets,
		})
	}
	sort.Slice(rv, func(i, j int) bool { return rv[i].ID < rv[j].ID })
	return rv, nil
}

// PushesWithinChanges returns the pushes from "from" to "to", both included.
func (r *Repo) PushesWithinChanges(ctx context.Context, from, to Ref) ([]*Push, error) {
	var rv []*Push
	q := Query{}
	if from.IsDate() {
		q.StartDate = from.Date
	} else {
		// fromchange is excluded from the response, so it is fetched on its own.
		first, err := r.Pushes(ctx, Query{Changeset: from.Changeset})
		if err != nil {
			return nil, err
		}
		rv = first
		q.FromChange = from.Changeset
	}
	if to.IsDate() {
		// enddate is exclusive.
		q.EndDate = to.Date.AddDate(0, 0, 1)
	} else {
		q.ToChange = to.Changeset
	}
	rest, err := r.Pushes(ctx, q)
	if err != nil {
		return nil, err
	}
	rv = append(rv, rest...)

	if from.IsDate() {
		sklog.Debugf("Using %s (pushed on %s) for date %s", rv[0].Changeset(), rv[0].Date, from)
	}
	if to.IsDate() {
		last := rv[len(rv)-1]
		sklog.Debugf("Using %s (pushed on %s) for date %s", last.Changeset(), last.Date, to)
	}
	return rv, nil
}

// Push returns the push containing the given changeset, or the last push of
// the given date.
func (r *Repo) Push(ctx context.Context, ref Ref, full bool) (*Push, error) {
	if ref.IsDate() {
		pushes, err := r.PushesWithinChanges(ctx, ref, ref)
		if err != nil {
			if errors.Is(err, ErrEmptyPushlog) {
				return nil, skerr.Wrapf(ErrEmptyPushlog, "no pushes available for the date %s on %s", ref, r.Branch)
			}
			return nil, err
		}
		return pushes[len(pushes)-1], nil
	}
	pushes, err := r.Pushes(ctx, Query{Changeset: ref.Changeset, Full: full})
	if err != nil {
		return nil, err
	}
	return pushes[0], nil
}
