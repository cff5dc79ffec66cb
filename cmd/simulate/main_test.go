package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/goccy/go-json"
	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/elorank/internal/simulate"
	"github.com/okian/elorank/pkg/logger"
)

func TestSimulateCommand(t *testing.T) {
	Convey("Given the simulate command in in-process mode", t, func() {
		So(logger.InitWithFormat(logger.FormatText, &bytes.Buffer{}), ShouldBeNil)
		args := []string{"--inprocess", "--collections", "1", "--items", "5", "--rounds", "100", "--seed", "9"}

		Convey("When the report goes to stdout", func() {
			var out bytes.Buffer
			cmd := newRootCmd()
			cmd.SetOut(&out)
			cmd.SetArgs(args)
			So(cmd.ExecuteContext(context.Background()), ShouldBeNil)

			Convey("Then it is a JSON report", func() {
				var report simulate.Report
				So(json.Unmarshal(out.Bytes(), &report), ShouldBeNil)
				So(report.Collections, ShouldHaveLength, 1)
				So(report.Collections[0].Judgments, ShouldEqual, 100)
			})
		})

		Convey("When the report goes to a file", func() {
			path := filepath.Join(t.TempDir(), "report.json")
			cmd := newRootCmd()
			cmd.SetArgs(append(args, "--output", path))
			So(cmd.ExecuteContext(context.Background()), ShouldBeNil)

			Convey("Then the file holds the report", func() {
				data, err := os.ReadFile(path)
				So(err, ShouldBeNil)
				So(string(data), ShouldContainSubstring, `"collections"`)
			})
		})

		Convey("When standings are exported after the run", func() {
			dir := filepath.Join(t.TempDir(), "exports")
			var out bytes.Buffer
			cmd := newRootCmd()
			cmd.SetOut(&out)
			cmd.SetArgs(append(args, "--export", "--export-dir", dir))
			So(cmd.ExecuteContext(context.Background()), ShouldBeNil)

			Convey("Then one file per collection is written", func() {
				var report simulate.Report
				So(json.Unmarshal(out.Bytes(), &report), ShouldBeNil)
				_, err := os.Stat(filepath.Join(dir, report.Collections[0].Collection+".json"))
				So(err, ShouldBeNil)
			})
		})

		Convey("When the flags are invalid", func() {
			cmd := newRootCmd()
			cmd.SetOut(&bytes.Buffer{})
			cmd.SetErr(&bytes.Buffer{})
			cmd.SetArgs([]string{"--inprocess", "--items", "1"})

			Convey("Then the command fails", func() {
				So(cmd.ExecuteContext(context.Background()), ShouldNotBeNil)
			})
		})

		Convey("When the remote service is unreachable", func() {
			cmd := newRootCmd()
			cmd.SetOut(&bytes.Buffer{})
			cmd.SetErr(&bytes.Buffer{})
			cmd.SetArgs([]string{"--url", "http://127.0.0.1:1", "--timeout", "200ms"})

			Convey("Then the health check fails", func() {
				So(cmd.ExecuteContext(context.Background()), ShouldNotBeNil)
			})
		})
	})
}
