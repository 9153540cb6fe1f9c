package export_test

import (
	"io/ioutil"
	"os"
	"time"

	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"

	"github.com/draw-health/gateway/internal/catalog"
	"github.com/draw-health/gateway/internal/model"
	"github.com/draw-health/gateway/internal/pipeline/export"
	"github.com/draw-health/gateway/internal/remoteapi"
)

var _ = Describe("Export pipeline", func() {
	var (
		store       *catalog.Store
		p           *export.Pipeline
		stagingRoot string
	)

	BeforeEach(func() {
		var err error
		store, err = catalog.Open(":memory:")
		Expect(err).NotTo(HaveOccurred())
		stagingRoot, err = ioutil.TempDir("", "export-staging")
		Expect(err).NotTo(HaveOccurred())
		client := remoteapi.NewClient(store, remoteapi.NewTokenCipher("test"))
		p = export.NewPipeline(store, client, stagingRoot, nil)
	})

	AfterEach(func() {
		store.Close()
		os.RemoveAll(stagingRoot)
	})

	Describe("RunOne", func() {
		It("fails the series when it has no instances", func() {
			se := &model.Series{
				SeriesUID:        "series-no-instances",
				StudyUID:         "study-1",
				ProcessingStatus: model.StatusRuleMatched,
			}
			Expect(store.PutSeries(se)).To(Succeed())

			err := p.RunOne(se, time.Now())
			Expect(err).To(HaveOccurred())

			got, err := store.GetSeries(se.SeriesUID)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.ProcessingStatus).To(Equal(model.StatusDeidentificationFailed))
		})
	})
})
