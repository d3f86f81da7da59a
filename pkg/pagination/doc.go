// Package pagination drives the portal's page-numbered listings.
//
// Portal listings do not report a page count. A listing is read one page at
// a time from the endpoint's first page until a page comes back without
// items. Each page request is built from a request template captured from the
// portal front end, with the endpoint's page key (and page-size key, where it
// has one) injected.
//
// Every page ends in one of three outcomes:
//
//   - OutcomePage: the list field held items; fetching continues
//   - OutcomeEmpty: the list field was empty or absent; the listing is done
//   - OutcomeFailed: the call failed or the body was malformed
//
// A failed page stops the listing and FetchAll returns the items gathered so
// far together with an error wrapping ErrPageFailed, so callers can tell a
// truncated listing from a complete one.
//
// Example usage:
//
//	fetcher := pagination.NewFetcher(portalClient, pagination.DefaultConfig())
//	items, err := fetcher.FetchAll(ctx, pagination.Endpoint{
//		Name:      "customers",
//		Method:    http.MethodPost,
//		Path:      "/RelacionamentoCliente/Tombamento/clientes",
//		PageKey:   "Pagina",
//		FirstPage: 1,
//		ListField: "clientes",
//	}, template)
//
// FanOut issues one call per item concurrently and waits for all of them;
// the client's permit pool is what bounds how many are in flight.
package pagination
