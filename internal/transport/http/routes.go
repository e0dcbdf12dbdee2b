package http

import "net/http"

// ListingSubresources dispatches the /listings/{id}/... endpoints. Go's
// ServeMux only matches the "/listings/" prefix; the suffix decides the
// handler.
func ListingSubresources(moderator ListingModerator, applier GrantApplier, releaser GrantReleaser) http.Handler {
	status := HandleListingStatus(moderator)
	apply := HandleApplyGrant(applier)
	release := HandleReleaseGrant(releaser)

	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case pathMatches(r.URL.Path, parseListingGrantReleasePath):
			release(w, r)
		case pathMatches(r.URL.Path, parseListingGrantsPath):
			apply(w, r)
		case pathMatches(r.URL.Path, parseListingStatusPath):
			status(w, r)
		default:
			writeError(w, http.StatusNotFound, codeNotFound, "not found")
		}
	})
}

func pathMatches(path string, parse func(string) (string, bool)) bool {
	_, ok := parse(path)
	return ok
}
