// Package sngraz is a client for the Stromnetz Graz customer web portal API.
//
// An Account logs in lazily, lists the customer's installations and the
// meters attached to them, and fetches consumption readings:
//
//	acc, err := sngraz.New(user, password, sngraz.WithLocation(vienna))
//	if err != nil {
//		return err
//	}
//	if err := acc.Refresh(ctx); err != nil {
//		return err
//	}
//	if err := acc.FetchConsumption(ctx, 3); err != nil {
//		return err
//	}
//	for _, inst := range acc.Installations() {
//		for _, m := range inst.Meters() {
//			fmt.Println(m.Name(), m.Data())
//		}
//	}
//
// Missing data is not an error. Calls that may find none report it with an
// ok flag and log the reason; errors are reserved for transport, protocol and
// authentication failures and wrap the sentinel errors of this package.
package sngraz
