package probe

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/bigbrotr/archiver/internal/domain"
)

// rawNIP11Doc mirrors the NIP-11 JSON document; unknown keys fall through
// to ExtraFields via the two-pass decode in FetchNIP11.
type rawNIP11Doc struct {
	Name           *string       `json:"name"`
	Description    *string       `json:"description"`
	Banner         *string       `json:"banner"`
	Icon           *string       `json:"icon"`
	Pubkey         *string       `json:"pubkey"`
	Contact        *string       `json:"contact"`
	SupportedNIPs  []interface{} `json:"supported_nips"`
	Software       *string       `json:"software"`
	Version        *string       `json:"version"`
	PrivacyPolicy  *string       `json:"privacy_policy"`
	TermsOfService *string       `json:"terms_of_service"`
	Limitation     map[string]interface{} `json:"limitation"`
}

var knownNIP11Keys = map[string]bool{
	"name": true, "description": true, "banner": true, "icon": true,
	"pubkey": true, "contact": true, "supported_nips": true, "software": true,
	"version": true, "privacy_policy": true, "terms_of_service": true,
	"limitation": true,
}

// FetchNIP11 issues the two-scheme GET described by the probe algorithm and
// returns the parsed metadata block, or nil if both schemes fail or the
// body carries no non-null field (absent block).
func FetchNIP11(ctx context.Context, client *http.Client, relay domain.Relay, timeout time.Duration) *domain.NIP11 {
	host := hostOf(relay.URL)
	for _, scheme := range []string{"https", "http"} {
		doc, extra, ok := tryFetchNIP11(ctx, client, scheme+"://"+host, timeout)
		if !ok {
			continue
		}
		n11 := &domain.NIP11{
			SupportedNIPs: doc.SupportedNIPs,
			Limitation:    doc.Limitation,
			ExtraFields:   extra,
		}
		assignIfNotNil(&n11.Name, doc.Name)
		assignIfNotNil(&n11.Description, doc.Description)
		assignIfNotNil(&n11.Banner, doc.Banner)
		assignIfNotNil(&n11.Icon, doc.Icon)
		assignIfNotNil(&n11.Pubkey, doc.Pubkey)
		assignIfNotNil(&n11.Contact, doc.Contact)
		assignIfNotNil(&n11.Software, doc.Software)
		assignIfNotNil(&n11.Version, doc.Version)
		assignIfNotNil(&n11.PrivacyPolicy, doc.PrivacyPolicy)
		assignIfNotNil(&n11.TermsOfService, doc.TermsOfService)
		if n11.Absent() {
			return nil
		}
		return n11
	}
	return nil
}

func assignIfNotNil(dst *string, src *string) {
	if src != nil {
		*dst = *src
	}
}

func tryFetchNIP11(ctx context.Context, client *http.Client, url string, timeout time.Duration) (rawNIP11Doc, map[string]interface{}, bool) {
	reqCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, url, nil)
	if err != nil {
		return rawNIP11Doc{}, nil, false
	}
	req.Header.Set("Accept", "application/nostr+json")

	resp, err := client.Do(req)
	if err != nil {
		return rawNIP11Doc{}, nil, false
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return rawNIP11Doc{}, nil, false
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return rawNIP11Doc{}, nil, false
	}

	var doc rawNIP11Doc
	if err := json.Unmarshal(body, &doc); err != nil {
		return rawNIP11Doc{}, nil, false
	}

	var all map[string]interface{}
	if err := json.Unmarshal(body, &all); err != nil {
		return rawNIP11Doc{}, nil, false
	}
	extra := make(map[string]interface{})
	for k, v := range all {
		if !knownNIP11Keys[k] {
			extra[k] = v
		}
	}
	return doc, extra, true
}

func hostOf(relayURL string) string {
	// relayURL is already validated by domain.NewRelay as ws(s)://host[/path];
	// strip the ws(s):// prefix to get an http(s)-ready host.
	for _, prefix := range []string{"wss://", "ws://"} {
		if len(relayURL) > len(prefix) && relayURL[:len(prefix)] == prefix {
			return relayURL[len(prefix):]
		}
	}
	return relayURL
}
