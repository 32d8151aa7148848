package resolve

import (
	"context"
	"io"
	"net/http"
	"regexp"
	"strings"

	"golang.org/x/net/html"

	"go.buildbisect.org/infra/go/httputils"
	"go.buildbisect.org/infra/go/skerr"
	"go.buildbisect.org/infra/go/util"
)

// parseLinks returns the href of every link of an html page. Hrefs that are
// absolute paths on the server are reduced to their last part, so that
// "/pub/firefox/nightly/2015/03/2015-03-02-03-02-04-mozilla-central/"
// becomes "2015-03-02-03-02-04-mozilla-central/".
func parseLinks(r io.Reader, re *regexp.Regexp) ([]string, error) {
	rv := []string{}
	tokenizer := html.NewTokenizer(r)
	for {
		switch tokenizer.Next() {
		case html.ErrorToken:
			if tokenizer.Err() == io.EOF {
				return rv, nil
			}
			return nil, skerr.Wrap(tokenizer.Err())
		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := tokenizer.TagName()
			if string(name) != "a" {
				continue
			}
			for hasAttr {
				var key, val []byte
				key, val, hasAttr = tokenizer.TagAttr()
				if string(key) != "href" {
					continue
				}
				href := string(val)
				if strings.HasPrefix(href, "/") {
					if strings.HasSuffix(href, "/") {
						trimmed := strings.Trim(href, "/")
						href = trimmed[strings.LastIndex(trimmed, "/")+1:] + "/"
					} else {
						href = href[strings.LastIndex(href, "/")+1:]
					}
				}
				if re == nil || re.MatchString(href) {
					rv = append(rv, href)
				}
			}
		}
	}
}

// urlLinks fetches an html page and returns its links, see parseLinks.
func urlLinks(ctx context.Context, c *http.Client, url string, re *regexp.Regexp) ([]string, error) {
	resp, err := httputils.GetWithContext(ctx, c, url)
	if err != nil {
		return nil, skerr.Wrapf(err, "listing %s", url)
	}
	defer util.Close(resp.Body)
	if resp.StatusCode != http.StatusOK {
		return nil, skerr.Wrap(&httputils.StatusError{
			StatusCode: resp.StatusCode,
			Method:     http.MethodGet,
			URL:        url,
			Body:       httputils.ReadAndClose(resp.Body),
		})
	}
	return parseLinks(resp.Body, re)
}

// getText fetches a small text file.
func getText(ctx context.Context, c *http.Client, url string) (string, error) {
	resp, err := httputils.GetWithContext(ctx, c, url)
	if err != nil {
		return "", skerr.Wrapf(err, "fetching %s", url)
	}
	if resp.StatusCode != http.StatusOK {
		body := httputils.ReadAndClose(resp.Body)
		return "", skerr.Wrap(&httputils.StatusError{
			StatusCode: resp.StatusCode,
			Method:     http.MethodGet,
			URL:        url,
			Body:       body,
		})
	}
	return httputils.ReadAndClose(resp.Body), nil
}

var oldTxtFormat = regexp.MustCompile(`^\d+ (\w+)$`)

// parseTxtInfo extracts the repository and changeset of a build metadata
// file. Old files only contain "BUILDID CHANGESET".
func parseTxtInfo(text string) (repository, changeset string) {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if strings.Contains(line, "/rev/") {
			parts := strings.SplitN(line, "/rev/", 2)
			return parts[0], parts[1]
		}
	}
	if m := oldTxtFormat.FindStringSubmatch(strings.TrimSpace(text)); m != nil {
		return "", m[1]
	}
	return "", ""
}
