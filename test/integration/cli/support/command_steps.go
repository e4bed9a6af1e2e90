package support

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/MeKo-Tech/coincount/cmd/coincount/cmd"
	"github.com/MeKo-Tech/coincount/internal/testutil"
	"github.com/MeKo-Tech/coincount/internal/utils"
	"github.com/cucumber/godog"
)

// RegisterCommandSteps registers the CLI execution steps.
func (testCtx *TestContext) RegisterCommandSteps(sc *godog.ScenarioContext) {
	sc.Step(`^an image "([^"]*)" with (\d+) coins?$`, testCtx.anImageWithCoins)
	sc.Step(`^a file "([^"]*)" containing "([^"]*)"$`, testCtx.aFileContaining)
	sc.Step(`^the environment variable "([^"]*)" is "([^"]*)"$`, testCtx.theEnvironmentVariableIs)
	sc.Step(`^I run "coincount ?([^"]*)"$`, testCtx.iRunCoincount)
	sc.Step(`^the command should succeed$`, testCtx.theCommandShouldSucceed)
	sc.Step(`^the command should fail$`, testCtx.theCommandShouldFail)
	sc.Step(`^the output should contain "([^"]*)"$`, testCtx.theOutputShouldContain)
	sc.Step(`^the output should not contain "([^"]*)"$`, testCtx.theOutputShouldNotContain)
	sc.Step(`^the error should contain "([^"]*)"$`, testCtx.theErrorShouldContain)
	sc.Step(`^the output should be valid JSON$`, testCtx.theOutputShouldBeValidJSON)
	sc.Step(`^the JSON output field "([^"]*)" should be (\d+)$`, testCtx.theJSONOutputFieldShouldBe)
	sc.Step(`^the file "([^"]*)" should exist$`, testCtx.theFileShouldExist)
	sc.Step(`^the file "([^"]*)" should contain "([^"]*)"$`, testCtx.theFileShouldContain)
}

// coinSlots are non-overlapping coins on a 640x480 canvas, smallest first.
// Their areas (about 6400, 8500, 11300, 14500, 18100 and 22200 px) all fall
// inside the default area band.
var coinSlots = []testutil.Coin{
	testutil.Disk(110, 120, 45),
	testutil.Disk(320, 120, 52),
	testutil.Disk(530, 120, 60),
	testutil.Disk(110, 350, 68),
	testutil.Disk(320, 350, 76),
	testutil.Disk(530, 350, 84),
}

func (testCtx *TestContext) anImageWithCoins(name string, count int) error {
	if count > len(coinSlots) {
		return fmt.Errorf("at most %d coins fit the test canvas", len(coinSlots))
	}
	scene := testutil.DefaultScene()
	scene.Coins = coinSlots[:count]
	img := testutil.GenerateCoinImage(scene)

	path := filepath.Join(testCtx.TempDir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}
	return utils.SaveImage(path, img, 95)
}

func (testCtx *TestContext) aFileContaining(name, content string) error {
	path := filepath.Join(testCtx.TempDir, name)
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(content), 0o600)
}

func (testCtx *TestContext) theEnvironmentVariableIs(name, value string) error {
	testCtx.SetEnv(name, value)
	return nil
}

// iRunCoincount executes a fresh command tree in process. "{images}" in the
// arguments expands to the base URL of the scenario's image server.
func (testCtx *TestContext) iRunCoincount(args string) error {
	args = strings.ReplaceAll(args, "{images}", testCtx.ImageURL)
	testCtx.LastCommand = "coincount " + args

	var stdout, stderr bytes.Buffer
	root := cmd.NewRootCommand()
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs(splitArgs(args))

	start := time.Now()
	testCtx.LastError = root.ExecuteContext(context.Background())
	testCtx.LastDuration = time.Since(start)
	testCtx.LastOutput = stdout.String()
	testCtx.LastStderr = stderr.String()
	return nil
}

// splitArgs splits on whitespace; single quotes group words.
func splitArgs(s string) []string {
	var (
		args    []string
		current strings.Builder
		quoted  bool
		started bool
	)
	for _, r := range s {
		switch {
		case r == '\'':
			quoted = !quoted
			started = true
		case r == ' ' && !quoted:
			if started {
				args = append(args, current.String())
				current.Reset()
				started = false
			}
		default:
			current.WriteRune(r)
			started = true
		}
	}
	if started {
		args = append(args, current.String())
	}
	return args
}

func (testCtx *TestContext) theCommandShouldSucceed() error {
	if testCtx.LastError != nil {
		return fmt.Errorf("%q failed: %v\nstderr: %s", testCtx.LastCommand, testCtx.LastError, testCtx.LastStderr)
	}
	return nil
}

func (testCtx *TestContext) theCommandShouldFail() error {
	if testCtx.LastError == nil {
		return fmt.Errorf("%q succeeded unexpectedly\noutput: %s", testCtx.LastCommand, testCtx.LastOutput)
	}
	return nil
}

func (testCtx *TestContext) theOutputShouldContain(want string) error {
	if !strings.Contains(testCtx.LastOutput, want) {
		return fmt.Errorf("output does not contain %q:\n%s", want, testCtx.LastOutput)
	}
	return nil
}

func (testCtx *TestContext) theOutputShouldNotContain(unwanted string) error {
	if strings.Contains(testCtx.LastOutput, unwanted) {
		return fmt.Errorf("output unexpectedly contains %q:\n%s", unwanted, testCtx.LastOutput)
	}
	return nil
}

func (testCtx *TestContext) theErrorShouldContain(want string) error {
	if testCtx.LastError == nil {
		return fmt.Errorf("expected an error containing %q, command succeeded", want)
	}
	if !strings.Contains(testCtx.LastError.Error(), want) {
		return fmt.Errorf("error %q does not contain %q", testCtx.LastError.Error(), want)
	}
	return nil
}

func (testCtx *TestContext) theOutputShouldBeValidJSON() error {
	if !json.Valid([]byte(testCtx.LastOutput)) {
		return fmt.Errorf("output is not valid JSON:\n%s", testCtx.LastOutput)
	}
	return nil
}

func (testCtx *TestContext) theJSONOutputFieldShouldBe(path string, want int) error {
	return jsonFieldEquals(testCtx.LastOutput, path, want)
}

func (testCtx *TestContext) theFileShouldExist(name string) error {
	if !testutil.FileExists(filepath.Join(testCtx.TempDir, name)) {
		return fmt.Errorf("file %s does not exist", name)
	}
	return nil
}

func (testCtx *TestContext) theFileShouldContain(name, want string) error {
	data, err := os.ReadFile(filepath.Join(testCtx.TempDir, name)) //nolint:gosec // G304: scenario temp dir
	if err != nil {
		return err
	}
	if !strings.Contains(string(data), want) {
		return fmt.Errorf("%s does not contain %q", name, want)
	}
	return nil
}

// jsonFieldEquals resolves a dotted path such as "summary.total_objects" in
// a JSON document and compares the number it finds.
func jsonFieldEquals(doc, path string, want int) error {
	var v interface{}
	if err := json.Unmarshal([]byte(doc), &v); err != nil {
		return fmt.Errorf("invalid JSON: %w", err)
	}
	for _, key := range strings.Split(path, ".") {
		obj, ok := v.(map[string]interface{})
		if !ok {
			return fmt.Errorf("%s: %q is not inside an object", path, key)
		}
		if v, ok = obj[key]; !ok {
			return fmt.Errorf("%s: missing key %q", path, key)
		}
	}
	got, ok := v.(float64)
	if !ok {
		return fmt.Errorf("%s is %v, not a number", path, v)
	}
	if int(got) != want {
		return fmt.Errorf("%s = %v, want %d", path, got, want)
	}
	return nil
}
