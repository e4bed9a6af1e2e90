package support

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/MeKo-Tech/coincount/cmd/coincount/cmd"
	"github.com/cucumber/godog"
)

// RegisterServerSteps registers the HTTP API steps.
func (testCtx *TestContext) RegisterServerSteps(sc *godog.ScenarioContext) {
	sc.Step(`^the server is running$`, func() error { return testCtx.theServerIsRunningWith("") })
	sc.Step(`^the server is running with "([^"]*)"$`, testCtx.theServerIsRunningWith)
	sc.Step(`^the images in the working directory are served over HTTP$`, testCtx.theImagesAreServed)
	sc.Step(`^I GET "([^"]*)"$`, testCtx.iGET)
	sc.Step(`^I upload "([^"]*)" to "([^"]*)"$`, testCtx.iUploadTo)
	sc.Step(`^I POST the URL of "([^"]*)" to "([^"]*)"$`, testCtx.iPOSTTheURLOfTo)
	sc.Step(`^I POST '([^']*)' to "([^"]*)"$`, testCtx.iPOSTJSONTo)
	sc.Step(`^the response status should be (\d+)$`, testCtx.theResponseStatusShouldBe)
	sc.Step(`^the response should contain "([^"]*)"$`, testCtx.theResponseShouldContain)
	sc.Step(`^the response JSON field "([^"]*)" should be (\d+)$`, testCtx.theResponseJSONFieldShouldBe)
	sc.Step(`^the response header "([^"]*)" should be "([^"]*)"$`, testCtx.theResponseHeaderShouldBe)
}

// theServerIsRunningWith starts "coincount serve" in process on a free port.
// flags are extra serve arguments.
func (testCtx *TestContext) theServerIsRunningWith(flags string) error {
	port, err := freePort()
	if err != nil {
		return err
	}
	args := append([]string{"serve", "--host", "127.0.0.1", "--port", strconv.Itoa(port)}, splitArgs(flags)...)

	ctx, cancel := context.WithCancel(context.Background())
	root := cmd.NewRootCommand()
	root.SetOut(io.Discard)
	root.SetErr(io.Discard)
	root.SetArgs(args)

	testCtx.stopServer = cancel
	testCtx.serverDone = make(chan error, 1)
	go func() { testCtx.serverDone <- root.ExecuteContext(ctx) }()

	testCtx.ServerURL = fmt.Sprintf("http://127.0.0.1:%d", port)
	return testCtx.waitForServer(10 * time.Second)
}

func freePort() (int, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return 0, err
	}
	defer func() { _ = ln.Close() }()
	return ln.Addr().(*net.TCPAddr).Port, nil
}

func (testCtx *TestContext) waitForServer(timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	for time.Now().Before(deadline) {
		select {
		case err := <-testCtx.serverDone:
			testCtx.serverDone = nil
			return fmt.Errorf("server exited during startup: %v", err)
		default:
		}
		resp, err := http.Get(testCtx.ServerURL + "/health")
		if err == nil {
			_ = resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return nil
			}
		}
		time.Sleep(50 * time.Millisecond)
	}
	return fmt.Errorf("server did not become healthy within %v", timeout)
}

// StopServer cancels the serve command and waits for its graceful shutdown.
func (testCtx *TestContext) StopServer() error {
	if testCtx.stopServer == nil {
		return nil
	}
	testCtx.stopServer()
	testCtx.stopServer = nil
	if testCtx.serverDone == nil {
		return nil
	}
	select {
	case err := <-testCtx.serverDone:
		return err
	case <-time.After(15 * time.Second):
		return errors.New("server did not shut down")
	}
}

// theImagesAreServed exposes the scenario temp dir as a static file server.
func (testCtx *TestContext) theImagesAreServed() error {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return err
	}
	testCtx.imageServer = &http.Server{
		Handler:           http.FileServer(http.Dir(testCtx.TempDir)),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() { _ = testCtx.imageServer.Serve(ln) }()
	testCtx.ImageURL = "http://" + ln.Addr().String()
	return nil
}

func (testCtx *TestContext) iGET(path string) error {
	resp, err := http.Get(testCtx.ServerURL + path)
	if err != nil {
		return err
	}
	return testCtx.recordResponse(resp)
}

func (testCtx *TestContext) iUploadTo(name, path string) error {
	data, err := os.ReadFile(filepath.Join(testCtx.TempDir, name)) //nolint:gosec // G304: scenario temp dir
	if err != nil {
		return err
	}
	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	part, err := w.CreateFormFile("image", name)
	if err != nil {
		return err
	}
	if _, err := part.Write(data); err != nil {
		return err
	}
	if err := w.Close(); err != nil {
		return err
	}

	resp, err := http.Post(testCtx.ServerURL+path, w.FormDataContentType(), &body)
	if err != nil {
		return err
	}
	return testCtx.recordResponse(resp)
}

func (testCtx *TestContext) iPOSTTheURLOfTo(name, path string) error {
	if testCtx.ImageURL == "" {
		return errors.New("no image server is running")
	}
	return testCtx.iPOSTJSONTo(fmt.Sprintf(`{"url": %q}`, testCtx.ImageURL+"/"+name), path)
}

func (testCtx *TestContext) iPOSTJSONTo(body, path string) error {
	resp, err := http.Post(testCtx.ServerURL+path, "application/json", strings.NewReader(body))
	if err != nil {
		return err
	}
	return testCtx.recordResponse(resp)
}

func (testCtx *TestContext) recordResponse(resp *http.Response) error {
	defer func() { _ = resp.Body.Close() }()
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	testCtx.LastHTTPStatusCode = resp.StatusCode
	testCtx.LastHTTPResponse = string(body)
	testCtx.LastHTTPHeaders = resp.Header
	return nil
}

func (testCtx *TestContext) theResponseStatusShouldBe(want int) error {
	if testCtx.LastHTTPStatusCode != want {
		return fmt.Errorf("status %d, want %d\nbody: %s", testCtx.LastHTTPStatusCode, want, testCtx.LastHTTPResponse)
	}
	return nil
}

func (testCtx *TestContext) theResponseShouldContain(want string) error {
	if !strings.Contains(testCtx.LastHTTPResponse, want) {
		return fmt.Errorf("response does not contain %q:\n%s", want, testCtx.LastHTTPResponse)
	}
	return nil
}

func (testCtx *TestContext) theResponseJSONFieldShouldBe(path string, want int) error {
	return jsonFieldEquals(testCtx.LastHTTPResponse, path, want)
}

func (testCtx *TestContext) theResponseHeaderShouldBe(name, want string) error {
	if got := testCtx.LastHTTPHeaders.Get(name); got != want {
		return fmt.Errorf("header %s = %q, want %q", name, got, want)
	}
	return nil
}
