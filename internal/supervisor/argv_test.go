package supervisor

import (
	"reflect"
	"testing"
)

func TestBuildArgvOrdersParamsDeterministically(t *testing.T) {
	t.Parallel()
	got := BuildArgv("/bin/mistinrtmp", "live", "rtmp://origin/live", "3", map[string]string{
		"-b": "4096",
		"-p": "1935",
	})
	want := []string{"/bin/mistinrtmp", "-s", "live", "rtmp://origin/live", "--debug", "3", "-b", "4096", "-p", "1935"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestBuildArgvSkipsDebugWhenOverridden(t *testing.T) {
	t.Parallel()
	got := BuildArgv("/bin/mistinrtmp", "live", "rtmp://origin/live", "3", map[string]string{
		"--debug": "7",
	})
	want := []string{"/bin/mistinrtmp", "-s", "live", "rtmp://origin/live", "--debug", "7"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestBuildArgvOmitsEmptyFlagValue(t *testing.T) {
	t.Parallel()
	got := BuildArgv("/bin/mistinhls", "live", "stream.m3u8", "", map[string]string{
		"--quiet": "",
	})
	want := []string{"/bin/mistinhls", "-s", "live", "stream.m3u8", "--quiet"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("got %v, want %v", got, want)
	}
}
