package server

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/cwaldvogel/vsbisect/pkg/vsbisect"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
)

func testServer(t *testing.T) (*httpServer, *httptest.Server) {
	log := logrus.New()
	log.SetOutput(io.Discard)

	h := &httpServer{
		log:      log,
		verdicts: make(chan vsbisect.Verdict, 1),
		answers:  make(chan bool, 1),
	}
	server := httptest.NewServer(h.router())
	t.Cleanup(server.Close)
	return h, server
}

func endpointStatus(server *httptest.Server, path string) int {
	res, err := http.Get(server.URL + path)
	if err != nil {
		return 0
	}
	res.Body.Close()
	return res.StatusCode
}

func TestBuildEndpointIdle(t *testing.T) {
	_, server := testServer(t)
	assert.Equal(t, http.StatusNoContent, endpointStatus(server, "/build"), "Idle server advertised a build")
}

func TestVerdictRoundTrip(t *testing.T) {
	h, server := testServer(t)

	got := make(chan vsbisect.Verdict, 1)
	go func() {
		verdict, err := h.Verdict(context.Background(), nil)
		assert.NoError(t, err, "Verdict returned an error")
		got <- verdict
	}()

	assert.Eventually(t, func() bool {
		return endpointStatus(server, "/build") == http.StatusOK
	}, time.Second, 10*time.Millisecond, "Build never published")

	res, err := http.Post(server.URL+"/verdict/bad", "", nil)
	assert.Nil(t, err, "Posting the verdict failed")
	res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode, "Verdict not accepted")

	assert.Equal(t, vsbisect.VerdictBad, <-got, "Wrong verdict delivered")
	assert.Equal(t, http.StatusNoContent, endpointStatus(server, "/build"), "Build still advertised after the verdict")
}

func TestVerdictValidation(t *testing.T) {
	_, server := testServer(t)

	res, err := http.Post(server.URL+"/verdict/meh", "", nil)
	assert.Nil(t, err, "Posting the verdict failed")
	res.Body.Close()
	assert.Equal(t, http.StatusBadRequest, res.StatusCode, "Invalid verdict accepted")

	res, err = http.Post(server.URL+"/verdict/good", "", nil)
	assert.Nil(t, err, "Posting the verdict failed")
	res.Body.Close()
	assert.Equal(t, http.StatusNotFound, res.StatusCode, "Verdict accepted with no build pending")
}

func TestVerdictCancellation(t *testing.T) {
	h, server := testServer(t)

	ctx, cancel := context.WithCancel(context.Background())
	errs := make(chan error, 1)
	go func() {
		_, err := h.Verdict(ctx, nil)
		errs <- err
	}()

	assert.Eventually(t, func() bool {
		return endpointStatus(server, "/build") == http.StatusOK
	}, time.Second, 10*time.Millisecond, "Build never published")

	cancel()
	assert.ErrorIs(t, <-errs, context.Canceled, "Cancellation not surfaced")
	assert.Equal(t, http.StatusNoContent, endpointStatus(server, "/build"), "Build still advertised after cancellation")
}

func TestPromptRoundTrip(t *testing.T) {
	h, server := testServer(t)
	assert.Equal(t, http.StatusNoContent, endpointStatus(server, "/prompt"), "Idle server advertised a question")

	got := make(chan bool, 1)
	ask := func() {
		answer, err := h.Confirm(context.Background(), "Did the install command finish successfully")
		assert.NoError(t, err, "Confirm returned an error")
		got <- answer
	}

	go ask()
	assert.Eventually(t, func() bool {
		return endpointStatus(server, "/prompt") == http.StatusOK
	}, time.Second, 10*time.Millisecond, "Question never published")

	res, err := http.Get(server.URL + "/prompt")
	assert.Nil(t, err, "Fetching the question failed")
	var prompt promptResponse
	assert.Nil(t, json.NewDecoder(res.Body).Decode(&prompt), "Failed to decode the question")
	res.Body.Close()
	assert.Equal(t, "Did the install command finish successfully", prompt.Question, "Wrong question")

	res, err = http.Post(server.URL+"/prompt/yes", "", nil)
	assert.Nil(t, err, "Posting the answer failed")
	res.Body.Close()
	assert.Equal(t, http.StatusOK, res.StatusCode, "Answer not accepted")
	assert.True(t, <-got, "Positive answer not delivered")
	assert.Equal(t, http.StatusNoContent, endpointStatus(server, "/prompt"), "Question still advertised after the answer")

	go ask()
	assert.Eventually(t, func() bool {
		return endpointStatus(server, "/prompt") == http.StatusOK
	}, time.Second, 10*time.Millisecond, "Question never published")

	res, err = http.Post(server.URL+"/prompt/no", "", nil)
	assert.Nil(t, err, "Posting the answer failed")
	res.Body.Close()
	assert.False(t, <-got, "Negative answer not delivered")
}

func TestPromptValidation(t *testing.T) {
	_, server := testServer(t)

	res, err := http.Post(server.URL+"/prompt/maybe", "", nil)
	assert.Nil(t, err, "Posting the answer failed")
	res.Body.Close()
	assert.Equal(t, http.StatusBadRequest, res.StatusCode, "Invalid answer accepted")

	res, err = http.Post(server.URL+"/prompt/yes", "", nil)
	assert.Nil(t, err, "Posting the answer failed")
	res.Body.Close()
	assert.Equal(t, http.StatusNotFound, res.StatusCode, "Answer accepted with no question pending")
}

func TestFinishPublishesOutcome(t *testing.T) {
	h, server := testServer(t)

	good := vsbisect.Build{Commit: strings.Repeat("a", 40)}
	bad := vsbisect.Build{Commit: strings.Repeat("b", 40)}
	h.Finish(&vsbisect.Outcome{Good: &good, Bad: &bad, Steps: 3, Candidates: 6})

	res, err := http.Get(server.URL + "/build")
	assert.Nil(t, err, "Fetching the outcome failed")
	var outcome outcomeResponse
	assert.Nil(t, json.NewDecoder(res.Body).Decode(&outcome), "Failed to decode the outcome")
	res.Body.Close()

	assert.True(t, outcome.Done, "Outcome not marked done")
	assert.Equal(t, good.Commit, outcome.GoodCommit, "Wrong good commit")
	assert.Equal(t, bad.Commit, outcome.BadCommit, "Wrong bad commit")
	assert.Contains(t, outcome.Message, "issue appears between", "Wrong outcome message")
	assert.Contains(t, outcome.DiffURL, "/compare/", "Wrong diff URL")

	res, err = http.Post(server.URL+"/verdict/good", "", nil)
	assert.Nil(t, err, "Posting the verdict failed")
	res.Body.Close()
	assert.Equal(t, http.StatusNotFound, res.StatusCode, "Verdict accepted after the session finished")
}

func TestNewServer(t *testing.T) {
	log := logrus.New()
	log.SetOutput(io.Discard)

	oracle, err := NewServer(HTTP, 0, log)
	assert.Nil(t, err, "Failed to start an HTTP verdict server")
	assert.NotNil(t, oracle, "No oracle returned")

	_, err = NewServer(ServerType(42), 0, log)
	assert.Error(t, err, "Invalid server type accepted")
}
