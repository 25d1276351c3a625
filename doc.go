// Package reqgate guards an HTTP client against duplicate in-flight calls
// and cancels requests on behalf of UI units that went away.
//
// Every request gets a Key built from its method and URL. While a request
// with a given key is in flight, an identical request is handled according
// to the gate's Policy: rejected (the default), allowed to supersede the old
// one, or joined onto it. Requests can be tagged with a Scope; when the unit
// that owns the scope is torn down it calls ClearPendingRequests and every
// request still tagged with the scope is cancelled:
//
//	gate := reqgate.New(reqgate.NewHTTPTransport(baseURL, nil))
//	defer gate.Close()
//
//	scope := reqgate.NewScope("product-detail")
//	defer gate.ClearPendingRequests(scope)
//
//	resp, err := gate.Get(ctx, "/api/product/42", reqgate.WithScope(scope))
//	if reqgate.IsCanceled(err) {
//		return nil // superseded or torn down; nothing to report
//	}
//
// Cancellations are the only errors the gate produces itself. They are
// *CanceledError values and match ErrCanceled; transport errors, including
// *StatusError for non-2xx responses, are returned unchanged.
package reqgate
