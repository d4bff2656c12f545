package main

import (
	"context"
	"fmt"
	"log"

	"github.com/infinivision/recdb/db"
	"github.com/infinivision/recdb/record"
	"github.com/infinivision/recdb/store"
)

func main() {
	cfg := db.DefaultConfig()
	cfg.DirName = "test.db"
	d, err := db.Open(cfg)
	if err != nil {
		log.Fatal(err)
	}
	defer d.Close()

	ctx := context.Background()
	plain, err := d.CreateRecordStore("test.plain", "plain-1", store.Options{
		CappedMaxSize: -1,
		CappedMaxDocs: -1,
	})
	if err != nil {
		log.Fatal(err)
	}
	{
		tx := d.Begin(ctx)
		for i := 0; i < 100; i++ {
			if _, err := plain.Insert(tx, []byte(fmt.Sprintf("payload_%v", i))); err != nil {
				tx.Rollback()
				log.Fatal(err)
			}
		}
		if err := tx.Commit(); err != nil {
			log.Fatal(err)
		}
	}
	{
		tx := d.Begin(ctx)
		defer tx.Rollback()
		c, err := plain.NewCursor(tx, true)
		if err != nil {
			log.Fatal(err)
		}
		for rec := c.Next(); rec != nil; rec = c.Next() {
			fmt.Printf("%v: %s\n", rec.ID, string(rec.Data))
		}
		c.Close()
		fmt.Printf("records=%v size=%v\n", plain.NumRecords(tx), plain.DataSize(tx))
	}

	capped, err := d.CreateRecordStore("test.capped", "capped-1", store.Options{
		Capped:        true,
		CappedMaxSize: 1 << 10,
		CappedMaxDocs: 10,
	})
	if err != nil {
		log.Fatal(err)
	}
	{
		for i := 0; i < 100; i++ {
			tx := d.Begin(ctx)
			if _, err := capped.Insert(tx, []byte(fmt.Sprintf("entry_%v", i))); err != nil {
				tx.Rollback()
				log.Fatal(err)
			}
			if err := tx.Commit(); err != nil {
				log.Fatal(err)
			}
		}
		tx := d.Begin(ctx)
		defer tx.Rollback()
		if n := capped.NumRecords(tx); n > 10 {
			log.Fatal(fmt.Errorf("capped store holds %v records, want <= 10", n))
		}
		c, err := capped.NewCursor(tx, false)
		if err != nil {
			log.Fatal(err)
		}
		for rec := c.Next(); rec != nil; rec = c.Next() {
			fmt.Printf("%v: %s\n", rec.ID, string(rec.Data))
		}
		c.Close()
	}

	oplog, err := d.CreateRecordStore("local.oplog.rs", "oplog-1", store.Options{
		Capped:        true,
		CappedMaxSize: 1 << 20,
		CappedMaxDocs: -1,
	})
	if err != nil {
		log.Fatal(err)
	}
	{
		for i := 1; i <= 10; i++ {
			tx := d.Begin(ctx)
			if _, err := oplog.OplogInsert(tx, record.ID(i), []byte(fmt.Sprintf("op_%v", i))); err != nil {
				tx.Rollback()
				log.Fatal(err)
			}
			if err := tx.Commit(); err != nil {
				log.Fatal(err)
			}
		}
		tx := d.Begin(ctx)
		defer tx.Rollback()
		if err := oplog.WaitForAllEarlierOplogWritesToBeVisible(tx); err != nil {
			log.Fatal(err)
		}
		at, err := oplog.OplogStartHack(tx, record.ID(7))
		if err != nil {
			log.Fatal(err)
		}
		fmt.Printf("oplog start at or before 7: %v\n", at)
	}
}
