// Package transaction coordinates a system-of-record transaction with the
// derived cache that mirrors it.
//
// The key-value cache cannot take part in the database transaction, so every
// cache mutation made while a transaction is open records its inverse on the
// Coordinator's Log. Commit drops the log. Rollback aborts the database
// transaction and then replays the log newest first, which leaves the cache as
// it was before the transaction began.
//
//	coord := transaction.NewCoordinator(bunstore.NewBeginner(db))
//	err := coord.Use(ctx, func(ctx context.Context) error {
//		if _, err := users.Post(ctx, record); err != nil {
//			return err
//		}
//		_, err := orders.PatchByID(ctx, orderID, fields)
//		return err
//	})
//
// Nested Use calls run inline: only the outermost call commits or rolls back.
// Cache mutations made with no open transaction are durable immediately.
package transaction
