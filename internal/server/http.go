package server

import (
	"context"
	"fmt"
	"net/http"
	"sync"

	"github.com/cwaldvogel/vsbisect/pkg/vsbisect"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

type httpServer struct {
	log *logrus.Logger

	mu       sync.Mutex
	build    *buildResponse   // build awaiting a verdict, nil while none is
	question string           // question awaiting an answer, empty while none is
	outcome  *outcomeResponse // set once the session finished

	verdicts chan vsbisect.Verdict
	answers  chan bool
}

func (h *httpServer) init(port int, log *logrus.Logger) error {
	h.log = log
	h.verdicts = make(chan vsbisect.Verdict, 1)
	h.answers = make(chan bool, 1)

	router := h.router()
	go func() {
		if err := router.Run(fmt.Sprintf("localhost:%d", port)); err != nil {
			log.WithError(err).Error("Verdict server stopped")
		}
	}()
	return nil
}

func (h *httpServer) router() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	router := gin.New()

	router.GET("/build", h.getBuild)
	router.POST("/verdict/:verdict", h.postVerdict)
	router.GET("/prompt", h.getPrompt)
	router.POST("/prompt/:answer", h.postAnswer)

	return router
}

type buildResponse struct {
	Commit  string `json:"commit"`
	Quality string `json:"quality"`
	Runtime string `json:"runtime"`

	URL string `json:"url,omitempty"`
}

type outcomeResponse struct {
	Done bool `json:"done"`

	GoodCommit string `json:"goodCommit,omitempty"`
	BadCommit  string `json:"badCommit,omitempty"`

	Message string `json:"message"`
	DiffURL string `json:"diffUrl,omitempty"`
}

type promptResponse struct {
	Question string `json:"question"`
}

// Verdict publishes the launched instance on /build and waits for a client
// to post the answer.
func (h *httpServer) Verdict(ctx context.Context, inst *vsbisect.Instance) (vsbisect.Verdict, error) {
	// Drop a leftover answer from an abandoned round.
	select {
	case <-h.verdicts:
	default:
	}

	h.mu.Lock()
	h.build = &buildResponse{}
	if inst != nil {
		build := inst.Build()
		h.build.Commit = build.Commit
		h.build.Quality = build.Kind.Quality.String()
		h.build.Runtime = build.Kind.Runtime.String()
		h.build.URL = inst.URL()
	}
	h.mu.Unlock()

	h.log.Info("Waiting for a verdict on POST /verdict/:verdict")
	select {
	case verdict := <-h.verdicts:
		return verdict, nil
	case <-ctx.Done():
		h.mu.Lock()
		h.build = nil
		h.mu.Unlock()
		return 0, ctx.Err()
	}
}

// Confirm publishes the question on /prompt and waits for a client to post
// yes or no.
func (h *httpServer) Confirm(ctx context.Context, question string) (bool, error) {
	select {
	case <-h.answers:
	default:
	}

	h.mu.Lock()
	h.question = question
	h.mu.Unlock()

	h.log.WithField("question", question).Info("Waiting for an answer on POST /prompt/:answer")
	select {
	case answer := <-h.answers:
		return answer, nil
	case <-ctx.Done():
		h.mu.Lock()
		h.question = ""
		h.mu.Unlock()
		return false, ctx.Err()
	}
}

func (h *httpServer) Finish(outcome *vsbisect.Outcome) {
	resp := &outcomeResponse{
		Done:    true,
		Message: outcome.String(),
		DiffURL: outcome.DiffURL(),
	}
	if outcome.Good != nil {
		resp.GoodCommit = outcome.Good.Commit
	}
	if outcome.Bad != nil {
		resp.BadCommit = outcome.Bad.Commit
	}

	h.mu.Lock()
	h.outcome = resp
	h.build = nil
	h.mu.Unlock()
}

func (h *httpServer) getBuild(c *gin.Context) {
	h.mu.Lock()
	defer h.mu.Unlock()

	switch {
	case h.outcome != nil:
		c.JSON(http.StatusOK, h.outcome)
	case h.build != nil:
		c.JSON(http.StatusOK, h.build)
	default:
		c.AbortWithStatus(http.StatusNoContent)
	}
}

func (h *httpServer) postVerdict(c *gin.Context) {
	verdict, err := vsbisect.ParseVerdict(c.Param("verdict"))
	if err != nil {
		c.AbortWithError(http.StatusBadRequest, err)
		return
	}

	h.mu.Lock()
	if h.build == nil {
		h.mu.Unlock()
		c.AbortWithStatus(http.StatusNotFound)
		return
	}
	h.build = nil
	h.mu.Unlock()

	h.verdicts <- verdict
	c.AbortWithStatus(http.StatusOK)
}

func (h *httpServer) getPrompt(c *gin.Context) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.question == "" {
		c.AbortWithStatus(http.StatusNoContent)
		return
	}
	c.JSON(http.StatusOK, promptResponse{Question: h.question})
}

func (h *httpServer) postAnswer(c *gin.Context) {
	var answer bool
	switch c.Param("answer") {
	case "yes", "done", "true":
		answer = true
	case "no", "skip", "false":
		answer = false
	default:
		c.AbortWithStatus(http.StatusBadRequest)
		return
	}

	h.mu.Lock()
	if h.question == "" {
		h.mu.Unlock()
		c.AbortWithStatus(http.StatusNotFound)
		return
	}
	h.question = ""
	h.mu.Unlock()

	h.answers <- answer
	c.AbortWithStatus(http.StatusOK)
}
