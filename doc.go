// Package dbwrapper is a thin data-access layer over database/sql: a fluent builder for parameterized SELECT/INSERT/UPDATE/DELETE statements, a transactional facade that owns one pooled connection per unit of work (commit on success, rollback on error), named queries loaded from <dir>/<name>.sql with a fallback to literal SQL, and pagination that fetches one extra row instead of running a count query. Statements use %(name)s placeholders, rewritten into the positional placeholders of the configured dialect; values are always bound by the driver, never concatenated.
//
//	pool, err := dbwrapper.Open(cfg)
//	if err != nil {
//		return err
//	}
//	defer pool.Close()
//
//	err = pool.Do(ctx, func(db *dbwrapper.Database) error {
//		if _, err := db.Insert("users").Set("id", 1).Set("name", "User 1").ExecContext(ctx); err != nil {
//			return err
//		}
//		page, err := db.Select("users").OrderBy("id").PagingContext(ctx, 0, 20)
//		if err != nil {
//			return err
//		}
//		for _, row := range page.Data() {
//			name, _ := row.Field("name")
//			fmt.Println(name.String())
//		}
//		return nil
//	})
package dbwrapper
