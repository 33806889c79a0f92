package main

import (
	"flag"
	"fmt"
	"os"
	"strings"

	"github.com/mmdatafocus/bakery_backend/config"
	"github.com/mmdatafocus/bakery_backend/statement"
	"github.com/sirupsen/logrus"
)

func main() {
	in := flag.String("in", "", "Bank statement workbook (.xlsx) to read.")
	sheet := flag.String("sheet", "", "Sheet to load. Required when the workbook has several sheets.")
	out := flag.String("out", "", "Output workbook. Defaults to <in>_compresse.xlsx.")
	noCompress := flag.Bool("no-compress", false, "Only normalize and re-export, keep TPE lines as they are.")
	flag.Parse()

	if strings.TrimSpace(*in) == "" {
		fmt.Fprintln(os.Stderr, "-in is required")
		os.Exit(2)
	}
	logger := config.GetLogger()

	f, err := os.Open(*in)
	if err != nil {
		fmt.Fprintf(os.Stderr, "open %s: %v\n", *in, err)
		os.Exit(1)
	}
	wb, err := statement.OpenWorkbook(f)
	_ = f.Close()
	if err != nil {
		fmt.Fprintf(os.Stderr, "read %s: %v\n", *in, err)
		os.Exit(1)
	}
	defer wb.Close()

	name := strings.TrimSpace(*sheet)
	if name == "" {
		name, err = wb.AutoSelect()
		if err != nil {
			fmt.Fprintf(os.Stderr, "%v: %s\n", err, strings.Join(wb.Sheets(), ", "))
			os.Exit(2)
		}
	}
	st, err := wb.Load(name)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load sheet %q: %v\n", name, err)
		os.Exit(1)
	}

	if !*noCompress {
		var stats statement.CompressStats
		st, stats = statement.Compress(st)
		logger.WithFields(logrus.Fields{"sheet": name, "stats": stats}).Info("statement compressed")
		fmt.Printf("sheet=%s rows %d -> %d, %d TPE lines merged into %d, %d unparsable amounts, %d undated rows\n",
			name, stats.InputRows, stats.OutputRows, stats.MergedRows, stats.Groups, stats.UnparsableAmounts, stats.UnparsableDates)
	}

	target := strings.TrimSpace(*out)
	if target == "" {
		target = strings.TrimSuffix(*in, ".xlsx") + "_compresse.xlsx"
	}
	w, err := os.Create(target)
	if err != nil {
		fmt.Fprintf(os.Stderr, "create %s: %v\n", target, err)
		os.Exit(1)
	}
	if err := statement.Export(st, w); err != nil {
		_ = w.Close()
		fmt.Fprintf(os.Stderr, "write %s: %v\n", target, err)
		os.Exit(1)
	}
	if err := w.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "close %s: %v\n", target, err)
		os.Exit(1)
	}
	fmt.Printf("Wrote %s\n", target)
}
