package replay_test

import (
	"context"
	"errors"
	"os"
	"path/filepath"

	"github.com/luxfi/log"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/viper"

	"github.com/luxfi/dbtools/pkg/application"
	"github.com/luxfi/dbtools/pkg/block"
	"github.com/luxfi/dbtools/pkg/chaintest"
	"github.com/luxfi/dbtools/pkg/database"
	"github.com/luxfi/dbtools/pkg/engine"
	"github.com/luxfi/dbtools/pkg/replay"
)

var _ = Describe("Replay Driver", func() {
	var (
		ctx     context.Context
		tempDir string
		dbPath  string
		app     *application.App
		eng     *stubEngine
		reg     *prometheus.Registry
		cfg     engine.Config
		driver  *replay.Driver
	)

	BeforeEach(func() {
		ctx = context.Background()
		tempDir = GinkgoT().TempDir()
		dbPath = filepath.Join(tempDir, "blocks")

		app = application.New()
		app.Setup(tempDir, log.NewLogger("test"), viper.New())

		eng = newStubEngine()
		reg = prometheus.NewRegistry()
		cfg = engine.Config{Fee: true, BuiltinScoreOwner: chaintest.Sender}

		var err error
		driver, err = replay.New(app, eng, cfg, reg)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		Expect(driver.Close()).To(Succeed())
	})

	counter := func(name string) float64 {
		families, err := reg.Gather()
		Expect(err).NotTo(HaveOccurred())
		for _, mf := range families {
			if mf.GetName() == name {
				return mf.GetMetric()[0].GetCounter().GetValue()
			}
		}
		return 0
	}

	Context("state transitions", func() {
		It("should start idle", func() {
			Expect(driver.State()).To(Equal(replay.Idle))
		})

		It("should refuse to run before Open", func() {
			_, err := driver.Run(ctx, replay.Options{DBPath: dbPath})
			Expect(err).To(MatchError(replay.ErrInvalidState))
			Expect(driver.State()).To(Equal(replay.Idle))
		})

		It("should pass the config to the engine", func() {
			Expect(driver.Open(ctx)).To(Succeed())
			Expect(driver.State()).To(Equal(replay.Opened))
			Expect(eng.opened).NotTo(BeNil())
			Expect(*eng.opened).To(Equal(cfg))
		})

		It("should refuse a second Open", func() {
			Expect(driver.Open(ctx)).To(Succeed())
			Expect(driver.Open(ctx)).To(MatchError(replay.ErrInvalidState))
		})

		It("should stay idle when the engine refuses the session", func() {
			eng.openErr = errors.New("no engine")
			Expect(driver.Open(ctx)).To(MatchError(eng.openErr))
			Expect(driver.State()).To(Equal(replay.Idle))
		})

		It("should close the session once", func() {
			Expect(driver.Open(ctx)).To(Succeed())
			Expect(driver.Close()).To(Succeed())
			Expect(driver.Close()).To(Succeed())
			Expect(eng.closed).To(Equal(1))
		})

		It("should not register metrics twice on one registry", func() {
			_, err := replay.New(app, eng, cfg, reg)
			Expect(err).To(HaveOccurred())
		})
	})

	Context("with blocks at heights 0..4", func() {
		BeforeEach(func() {
			Expect(chaintest.Write(dbPath, chaintest.Chain(block.V03, 5, 2)...)).To(Succeed())
			Expect(driver.Open(ctx)).To(Succeed())
		})

		It("should commit every block and complete", func() {
			result, err := driver.Run(ctx, replay.Options{DBPath: dbPath, Count: 5, StopOnError: true})
			Expect(err).NotTo(HaveOccurred())

			Expect(result.State).To(Equal(replay.Completed))
			Expect(driver.State()).To(Equal(replay.Completed))
			Expect(eng.committed).To(Equal([]int64{0, 1, 2, 3, 4}))
			Expect(eng.discarded).To(BeEmpty())
			Expect(eng.txCounts).To(Equal([]int{2, 2, 2, 2, 2}))
			Expect(result.Progress.BlocksProcessed).To(Equal(uint64(5)))
			Expect(result.Progress.ErrorCount).To(BeZero())
			Expect([]byte(result.Progress.LastCommittedStateRoot)).To(Equal(chaintest.StateRoot(4)))
			Expect(result.Mismatches).To(BeEmpty())
			Expect(result.Stop()).To(BeNil())

			Expect(counter("dbtools_sync_blocks_processed_total")).To(Equal(5.0))
			Expect(counter("dbtools_sync_blocks_committed_total")).To(Equal(5.0))
		})

		It("should stop at a mismatch and leave later heights untouched", func() {
			eng.wrong[3] = true

			result, err := driver.Run(ctx, replay.Options{DBPath: dbPath, Count: 5, StopOnError: true})
			Expect(err).NotTo(HaveOccurred())

			Expect(result.State).To(Equal(replay.Stopped))
			Expect(eng.executed).To(Equal([]int64{0, 1, 2, 3}))
			Expect(eng.committed).To(Equal([]int64{0, 1, 2}))
			Expect(eng.discarded).To(Equal([]int64{3}))
			Expect(result.Progress.CurrentHeight).To(Equal(uint64(3)))
			Expect(result.Progress.BlocksProcessed).To(Equal(uint64(3)))
			Expect([]byte(result.Progress.LastCommittedStateRoot)).To(Equal(chaintest.StateRoot(2)))

			stop := result.Stop()
			Expect(stop).NotTo(BeNil())
			Expect(stop.Height).To(Equal(uint64(3)))
			Expect([]byte(stop.Expected)).To(Equal(chaintest.StateRoot(3)))
			Expect(stop.Error()).To(ContainSubstring("height 3"))
			Expect(counter("dbtools_sync_state_root_mismatches_total")).To(Equal(1.0))
		})

		It("should count mismatches and continue without stop-on-error", func() {
			eng.wrong[1] = true
			eng.wrong[3] = true

			result, err := driver.Run(ctx, replay.Options{DBPath: dbPath, All: true})
			Expect(err).NotTo(HaveOccurred())

			Expect(result.State).To(Equal(replay.Completed))
			Expect(result.Progress.ErrorCount).To(Equal(2))
			Expect(result.Mismatches).To(HaveLen(2))
			Expect(result.Stop()).To(BeNil())
			Expect(eng.committed).To(Equal([]int64{0, 1, 2, 3, 4}))
		})

		It("should discard every block with no-commit", func() {
			result, err := driver.Run(ctx, replay.Options{DBPath: dbPath, All: true, NoCommit: true})
			Expect(err).NotTo(HaveOccurred())

			Expect(result.State).To(Equal(replay.Completed))
			Expect(eng.committed).To(BeEmpty())
			Expect(eng.discarded).To(Equal([]int64{0, 1, 2, 3, 4}))
			Expect(result.Progress.LastCommittedStateRoot).To(BeNil())
			Expect(counter("dbtools_sync_blocks_committed_total")).To(BeZero())
		})

		It("should honour start height and count", func() {
			result, err := driver.Run(ctx, replay.Options{DBPath: dbPath, StartHeight: 1, Count: 2})
			Expect(err).NotTo(HaveOccurred())

			Expect(result.State).To(Equal(replay.Completed))
			Expect(eng.executed).To(Equal([]int64{1, 2}))
			Expect(result.Progress.CurrentHeight).To(Equal(uint64(3)))
		})

		It("should complete when the count runs past the chain end", func() {
			result, err := driver.Run(ctx, replay.Options{DBPath: dbPath, StartHeight: 3, Count: 10})
			Expect(err).NotTo(HaveOccurred())

			Expect(result.State).To(Equal(replay.Completed))
			Expect(eng.executed).To(Equal([]int64{3, 4}))
			Expect(result.Progress.CurrentHeight).To(Equal(uint64(5)))
		})

		It("should complete without executing when starting past the chain end", func() {
			result, err := driver.Run(ctx, replay.Options{DBPath: dbPath, StartHeight: 42, All: true})
			Expect(err).NotTo(HaveOccurred())

			Expect(result.State).To(Equal(replay.Completed))
			Expect(eng.executed).To(BeEmpty())
		})

		It("should replay nothing with a zero count", func() {
			result, err := driver.Run(ctx, replay.Options{DBPath: dbPath, Count: 0})
			Expect(err).NotTo(HaveOccurred())

			Expect(result.State).To(Equal(replay.Completed))
			Expect(eng.executed).To(BeEmpty())
			Expect(eng.committed).To(BeEmpty())
			Expect(result.Progress.BlocksProcessed).To(BeZero())
			Expect(result.Progress.CurrentHeight).To(BeZero())
		})

		It("should write precommit data per height", func() {
			dir := filepath.Join(tempDir, "dump")
			_, err := driver.Run(ctx, replay.Options{
				DBPath:             dbPath,
				Count:              2,
				WritePrecommitData: true,
				PrecommitDir:       dir,
			})
			Expect(err).NotTo(HaveOccurred())

			for _, name := range []string{"precommit-0.json", "precommit-1.json"} {
				data, err := os.ReadFile(filepath.Join(dir, name))
				Expect(err).NotTo(HaveOccurred())
				Expect(string(data)).To(ContainSubstring(`"stateRoot"`))
				Expect(string(data)).To(ContainSubstring(`"accounts": 1`))
			}
			_, err = os.Stat(filepath.Join(dir, "precommit-2.json"))
			Expect(os.IsNotExist(err)).To(BeTrue())
		})

		It("should default the precommit directory to the base dir", func() {
			_, err := driver.Run(ctx, replay.Options{DBPath: dbPath, Count: 1, WritePrecommitData: true})
			Expect(err).NotTo(HaveOccurred())
			Expect(filepath.Join(app.PrecommitDir(), "precommit-0.json")).To(BeAnExistingFile())
		})

		It("should fail on an engine error and keep committed heights", func() {
			eng.failAt = 2

			result, err := driver.Run(ctx, replay.Options{DBPath: dbPath, All: true})
			Expect(err).To(MatchError(errExecute))
			Expect(err.Error()).To(ContainSubstring("height 2"))

			Expect(result.State).To(Equal(replay.Failed))
			Expect(driver.State()).To(Equal(replay.Failed))
			Expect(eng.committed).To(Equal([]int64{0, 1}))
			Expect(result.Progress.CurrentHeight).To(Equal(uint64(2)))
		})

		It("should refuse a second run", func() {
			_, err := driver.Run(ctx, replay.Options{DBPath: dbPath, All: true})
			Expect(err).NotTo(HaveOccurred())
			_, err = driver.Run(ctx, replay.Options{DBPath: dbPath, All: true})
			Expect(err).To(MatchError(replay.ErrInvalidState))
		})
	})

	Context("with an unverifiable block", func() {
		BeforeEach(func() {
			blocks := chaintest.Chain(block.V01a, 3, 1)
			blocks[1].StateRoot = nil
			Expect(chaintest.Write(dbPath, blocks...)).To(Succeed())
			Expect(driver.Open(ctx)).To(Succeed())
		})

		It("should commit blocks without a recorded root", func() {
			eng.wrong[1] = true

			result, err := driver.Run(ctx, replay.Options{DBPath: dbPath, All: true, StopOnError: true})
			Expect(err).NotTo(HaveOccurred())

			Expect(result.State).To(Equal(replay.Completed))
			Expect(eng.committed).To(Equal([]int64{0, 1, 2}))
			Expect(result.Mismatches).To(BeEmpty())
			Expect(result.Progress.Unverified).To(Equal(1))
		})
	})

	Context("with a broken store", func() {
		BeforeEach(func() {
			Expect(driver.Open(ctx)).To(Succeed())
		})

		It("should fail when the store is missing", func() {
			result, err := driver.Run(ctx, replay.Options{DBPath: dbPath, All: true})
			Expect(err).To(MatchError(database.ErrStoreNotFound))
			Expect(result.State).To(Equal(replay.Failed))
		})

		It("should fail on an unsupported block version", func() {
			Expect(chaintest.Write(dbPath, chaintest.NewBlock(block.V03, 0, 1))).To(Succeed())
			Expect(chaintest.WriteRaw(dbPath, 1, chaintest.BlockHash(1), []byte(`{"version":"0.7"}`))).To(Succeed())

			result, err := driver.Run(ctx, replay.Options{DBPath: dbPath, All: true})
			Expect(err).To(MatchError(block.ErrUnsupportedVersion))
			Expect(err.Error()).To(ContainSubstring("height 1"))
			Expect(result.State).To(Equal(replay.Failed))
			Expect(eng.committed).To(Equal([]int64{0}))
		})

		It("should fail when a block records another height than its index", func() {
			Expect(chaintest.Write(dbPath, chaintest.NewBlock(block.V03, 0, 1))).To(Succeed())
			payload, err := chaintest.NewBlock(block.V03, 5, 1).Payload()
			Expect(err).NotTo(HaveOccurred())
			Expect(chaintest.WriteRaw(dbPath, 1, chaintest.BlockHash(5), payload)).To(Succeed())

			result, err := driver.Run(ctx, replay.Options{DBPath: dbPath, All: true})
			Expect(err).To(MatchError(replay.ErrHeightMismatch))
			Expect(err.Error()).To(ContainSubstring("height 1"))
			Expect(err.Error()).To(ContainSubstring("records height 5"))
			Expect(result.State).To(Equal(replay.Failed))
			Expect(eng.executed).To(Equal([]int64{0}))
			Expect(eng.committed).To(Equal([]int64{0}))
		})
	})
})

var _ = Describe("State", func() {
	DescribeTable("names and terminality",
		func(s replay.State, name string, terminal bool) {
			Expect(s.String()).To(Equal(name))
			Expect(s.Terminal()).To(Equal(terminal))
		},
		Entry("idle", replay.Idle, "idle", false),
		Entry("opened", replay.Opened, "opened", false),
		Entry("running", replay.Running, "running", false),
		Entry("stopped", replay.Stopped, "stopped", true),
		Entry("completed", replay.Completed, "completed", true),
		Entry("failed", replay.Failed, "failed", true),
	)
})
