package config

import (
	"flag"
	"io/ioutil"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
)

func writeConfig(t *testing.T, content string) string {
	dir, err := ioutil.TempDir("", "midi-bridge")
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { os.RemoveAll(dir) })

	fileName := filepath.Join(dir, "config.yml")
	if err := ioutil.WriteFile(fileName, []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
	return fileName
}

func TestDefault(t *testing.T) {
	Convey("Given the default configuration", t, func() {
		c := Default()

		Convey("Then it should bridge the USB serial devices to a virtual port", func() {
			So(c.Bridges, ShouldHaveLength, 1)
			b := c.Bridges[0]
			So(b.Name, ShouldEqual, "bridge1")
			So(b.Transports, ShouldResemble, DefaultTransports)
			So(b.BaudRate, ShouldEqual, 115200)
			So(b.Sink, ShouldEqual, "Arduino Bridge")
			So(b.IsVirtual(), ShouldBeTrue)
			So(b.PollInterval, ShouldEqual, time.Millisecond)
			So(b.Reconnect, ShouldBeFalse)
			So(b.SendAttempts, ShouldEqual, 3)
			So(c.Panic.Sink, ShouldEqual, "Organ Mock")
			So(c.Validate(), ShouldBeNil)
		})
	})
}

func TestLoad(t *testing.T) {
	Convey("Given a configuration file with two bridges", t, func() {
		fileName := writeConfig(t, `
log_level: debug
bridges:
  - name: wokwi
    transports: ["localhost:4000"]
    sink: Wokwi Bridge
    poll_interval: 2ms
    reconnect: true
    retries: 3
    backoff: 500ms
    send_attempts: 5
  - name: organ
    virtual: false
    sink: FLUID Synth
panic:
  wait: 2s
`)

		Convey("When it is loaded", func() {
			c, err := Load(fileName)

			Convey("Then values and defaults should be set", func() {
				So(err, ShouldBeNil)
				So(c.LogLevel, ShouldEqual, "debug")
				So(c.Bridges, ShouldHaveLength, 2)

				wokwi := c.Bridges[0]
				So(wokwi.Transports, ShouldResemble, []string{"localhost:4000"})
				So(wokwi.PollInterval, ShouldEqual, 2*time.Millisecond)
				So(wokwi.Backoff, ShouldEqual, 500*time.Millisecond)
				So(wokwi.Retries, ShouldEqual, 3)
				So(wokwi.SendAttempts, ShouldEqual, 5)
				So(wokwi.IsVirtual(), ShouldBeTrue)

				organ := c.Bridges[1]
				So(organ.IsVirtual(), ShouldBeFalse)
				So(organ.Transports, ShouldResemble, DefaultTransports)
				So(organ.ReadTimeout, ShouldEqual, 100*time.Millisecond)
				So(organ.SendAttempts, ShouldEqual, 3)

				So(c.Panic.Wait, ShouldEqual, 2*time.Second)
				So(c.Panic.Sink, ShouldEqual, DefaultPanicSink)
			})
		})
	})

	Convey("Given a configuration with a slow poll interval", t, func() {
		fileName := writeConfig(t, `
bridges:
  - poll_interval: 50ms
`)

		Convey("Then loading should fail", func() {
			_, err := Load(fileName)
			So(err, ShouldNotBeNil)
		})
	})

	Convey("Given a configuration with duplicate names", t, func() {
		fileName := writeConfig(t, `
bridges:
  - name: a
  - name: a
`)

		Convey("Then loading should fail", func() {
			_, err := Load(fileName)
			So(err, ShouldNotBeNil)
		})
	})

	Convey("Given a bridge that only lists sockets", t, func() {
		fileName := writeConfig(t, `
bridges:
  - transports: ["tcp://", "127.0.0.1:4001"]
`)

		Convey("Then it should default to the simulator sink", func() {
			c, err := Load(fileName)
			So(err, ShouldBeNil)
			So(c.Bridges[0].Sink, ShouldEqual, DefaultTCPSink)
		})
	})

	Convey("Given a bridge name with spaces", t, func() {
		fileName := writeConfig(t, `
bridges:
  - name: my organ
`)

		Convey("Then loading should fail", func() {
			_, err := Load(fileName)
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "my organ")
		})
	})

	Convey("Given a sink name longer than a port name can be", t, func() {
		fileName := writeConfig(t, `
bridges:
  - sink: `+strings.Repeat("x", 65)+`
`)

		Convey("Then loading should fail", func() {
			_, err := Load(fileName)
			So(err, ShouldNotBeNil)
		})
	})

	Convey("Given a negative send attempt count", t, func() {
		fileName := writeConfig(t, `
bridges:
  - send_attempts: -1
`)

		Convey("Then loading should fail", func() {
			_, err := Load(fileName)
			So(err, ShouldNotBeNil)
		})
	})

	Convey("Given a broken file", t, func() {
		fileName := writeConfig(t, "bridges: [")

		Convey("Then loading should fail", func() {
			_, err := Load(fileName)
			So(err, ShouldNotBeNil)
		})
	})

	Convey("Given a missing file", t, func() {
		_, err := Load("/nonexistent/midi-bridge.yml")
		So(err, ShouldNotBeNil)
	})
}

func TestResolve(t *testing.T) {
	Convey("Given no config file", t, func() {
		Convey("Without overrides the defaults should be used", func() {
			c, err := Resolve("", Overrides{})
			So(err, ShouldBeNil)
			So(c, ShouldResemble, Default())
		})

		Convey("Overrides should describe the single bridge", func() {
			c, err := Resolve("", Overrides{
				Transports: []string{"/dev/ttyACM0", "localhost:4000"},
				Sink:       "Organ",
				BaudRate:   31250,
				Reconnect:  true,
			})
			So(err, ShouldBeNil)
			So(c.Bridges, ShouldHaveLength, 1)
			b := c.Bridges[0]
			So(b.Transports, ShouldResemble, []string{"/dev/ttyACM0", "localhost:4000"})
			So(b.Sink, ShouldEqual, "Organ")
			So(b.BaudRate, ShouldEqual, 31250)
			So(b.Reconnect, ShouldBeTrue)
			So(c.Panic.Sink, ShouldEqual, "Organ")
		})

		Convey("A socket transport alone should pick the simulator sink", func() {
			c, err := Resolve("", Overrides{Transports: []string{"tcp://"}})
			So(err, ShouldBeNil)
			So(c.Bridges[0].Sink, ShouldEqual, DefaultTCPSink)
			So(c.Panic.Sink, ShouldEqual, DefaultPanicSink)
		})

		Convey("Invalid overrides should be rejected", func() {
			_, err := Resolve("", Overrides{Sink: strings.Repeat("x", 65)})
			So(err, ShouldNotBeNil)
		})
	})

	Convey("Given a config file", t, func() {
		fileName := writeConfig(t, `
bridges:
  - name: organ
`)

		Convey("Without overrides the file should be loaded", func() {
			c, err := Resolve(fileName, Overrides{})
			So(err, ShouldBeNil)
			So(c.Bridges[0].Name, ShouldEqual, "organ")
		})

		Convey("Bridge flags should not be silently ignored", func() {
			_, err := Resolve(fileName, Overrides{Sink: "Organ"})
			So(err, ShouldNotBeNil)
			_, err = Resolve(fileName, Overrides{Reconnect: true})
			So(err, ShouldNotBeNil)
		})
	})
}

func TestStringList(t *testing.T) {
	Convey("Given a repeatable transport flag", t, func() {
		var l StringList
		fs := flag.NewFlagSet("midi-bridge", flag.ContinueOnError)
		fs.Var(&l, "transport", "")

		Convey("Repeated and comma separated values should be collected in order", func() {
			err := fs.Parse([]string{
				"-transport", "/dev/ttyACM0",
				"-transport", "tcp://, localhost:4001",
			})
			So(err, ShouldBeNil)
			So([]string(l), ShouldResemble, []string{"/dev/ttyACM0", "tcp://", "localhost:4001"})
			So(l.String(), ShouldEqual, "/dev/ttyACM0,tcp://,localhost:4001")

			c, err := Resolve("", Overrides{Transports: l})
			So(err, ShouldBeNil)
			So(c.Bridges[0].Transports, ShouldResemble, []string{"/dev/ttyACM0", "tcp://", "localhost:4001"})
			So(c.Bridges[0].Sink, ShouldEqual, DefaultSink)
		})
	})
}
