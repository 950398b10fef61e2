// Copyright Mesh Intelligence Inc., 2026. All rights reserved.

package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/pdiddy/paper-extractor/pkg/types"
)

type idconvResponse struct {
	Status  string         `json:"status"`
	Message string         `json:"message"`
	Records []idconvRecord `json:"records"`
}

type idconvRecord struct {
	PMCID  string `json:"pmcid"`
	PMID   string `json:"pmid"`
	DOI    string `json:"doi"`
	Status string `json:"status"`
	ErrMsg string `json:"errmsg"`
}

// Resolve returns the canonical PMC identifier for identifier. PMC IDs
// are normalized locally. Bare PubMed IDs are converted through the NCBI
// ID converter when IDConverterURL is set; otherwise, and for anything
// else, Resolve fails with types.ErrInvalidIdentifier.
func (f *Fetcher) Resolve(ctx context.Context, identifier string) (string, error) {
	idType, norm := Classify(identifier)
	switch idType {
	case TypePMC:
		return norm, nil
	case TypePMID:
		if f.IDConverterURL == "" {
			return "", fmt.Errorf("%w: %q is a PubMed ID and PMID resolution is disabled", types.ErrInvalidIdentifier, identifier)
		}
	default:
		return "", fmt.Errorf("%w: %q", types.ErrInvalidIdentifier, identifier)
	}

	params := f.commonParams()
	params.Set("ids", norm)
	params.Set("format", "json")

	body, err := f.get(ctx, norm, f.IDConverterURL, params)
	if err != nil {
		return "", err
	}

	var resp idconvResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return "", types.NewParseError(norm, body, err)
	}
	if strings.EqualFold(resp.Status, "error") {
		return "", fmt.Errorf("%w: %q: %s", types.ErrInvalidIdentifier, identifier, resp.Message)
	}

	for _, r := range resp.Records {
		if r.PMCID == "" {
			continue
		}
		if t, pmcid := Classify(r.PMCID); t == TypePMC {
			f.logger.Debug("resolved PubMed ID", zap.String("pmid", norm), zap.String("id", pmcid))
			return pmcid, nil
		}
	}

	reason := "no PMC record"
	if len(resp.Records) > 0 && resp.Records[0].ErrMsg != "" {
		reason = resp.Records[0].ErrMsg
	}
	return "", fmt.Errorf("%w: PMID %s: %s", types.ErrInvalidIdentifier, norm, reason)
}
