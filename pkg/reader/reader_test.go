package reader_test

import (
	"encoding/hex"
	"encoding/json"
	"os"
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/luxfi/dbtools/pkg/block"
	"github.com/luxfi/dbtools/pkg/chaintest"
	"github.com/luxfi/dbtools/pkg/database"
	"github.com/luxfi/dbtools/pkg/keys"
	"github.com/luxfi/dbtools/pkg/reader"
)

var _ = Describe("Block Reader", func() {
	var (
		tempDir string
		dbPath  string
		r       *reader.Reader
	)

	BeforeEach(func() {
		tempDir = GinkgoT().TempDir()
		dbPath = filepath.Join(tempDir, "blocks")
		r = reader.New(database.Options{})
	})

	AfterEach(func() {
		Expect(r.Close()).To(Succeed())
	})

	Context("before Open", func() {
		It("should refuse every query", func() {
			_, err := r.LastBlock()
			Expect(err).To(MatchError(reader.ErrNotOpen))
			_, err = r.BlockByHeight(0)
			Expect(err).To(MatchError(reader.ErrNotOpen))
			_, err = r.BlockByHash([]byte{1})
			Expect(err).To(MatchError(reader.ErrNotOpen))
			_, err = r.TransactionResultByHash([]byte{1})
			Expect(err).To(MatchError(reader.ErrNotOpen))
			_, err = r.HashByHeight(0)
			Expect(err).To(MatchError(reader.ErrNotOpen))
		})

		It("should report a missing store", func() {
			err := r.Open(filepath.Join(tempDir, "missing"))
			Expect(err).To(MatchError(database.ErrStoreNotFound))
		})
	})

	Context("with an empty store", func() {
		BeforeEach(func() {
			Expect(chaintest.Write(dbPath)).To(Succeed())
			Expect(r.Open(dbPath)).To(Succeed())
		})

		It("should report the last block as not found", func() {
			_, err := r.LastBlock()
			Expect(err).To(MatchError(reader.ErrNotFound))
		})

		It("should report unassigned heights as not found", func() {
			_, err := r.BlockByHeight(10)
			Expect(err).To(MatchError(reader.ErrNotFound))
		})
	})

	for _, version := range []block.Version{block.V01a, block.V03} {
		version := version

		Context("with a "+version.String()+" chain", func() {
			BeforeEach(func() {
				Expect(chaintest.Write(dbPath, chaintest.Chain(version, 5, 3)...)).To(Succeed())
				Expect(r.Open(dbPath)).To(Succeed())
			})

			It("should return the last block", func() {
				b, err := r.LastBlock()
				Expect(err).NotTo(HaveOccurred())
				Expect(b.Version).To(Equal(version))
				Expect(b.Height).To(Equal(int64(4)))
				Expect([]byte(b.Hash)).To(Equal(chaintest.BlockHash(4)))
			})

			It("should return blocks by height", func() {
				for h := uint64(0); h < 5; h++ {
					b, err := r.BlockByHeight(h)
					Expect(err).NotTo(HaveOccurred())
					Expect(b.Height).To(Equal(int64(h)))
					Expect([]byte(b.StateRoot)).To(Equal(chaintest.StateRoot(h)))
					Expect(b.Transactions()).To(HaveLen(3))
				}
			})

			It("should return the hash key for a height", func() {
				hashKey, err := r.HashByHeight(2)
				Expect(err).NotTo(HaveOccurred())
				Expect(string(hashKey)).To(Equal(hex.EncodeToString(chaintest.BlockHash(2))))
			})

			It("should return blocks by hash", func() {
				b, err := r.BlockByHash(chaintest.BlockHash(3))
				Expect(err).NotTo(HaveOccurred())
				Expect(b.Height).To(Equal(int64(3)))

				_, err = r.BlockByHash(chaintest.BlockHash(99))
				Expect(err).To(MatchError(reader.ErrNotFound))
			})

			It("should report heights past the head as not found", func() {
				_, err := r.BlockByHeight(5)
				Expect(err).To(MatchError(reader.ErrNotFound))
			})

			It("should decode the transactions of a block", func() {
				b, err := r.BlockByHeight(1)
				Expect(err).NotTo(HaveOccurred())

				txs, err := b.DecodeTransactions()
				Expect(err).NotTo(HaveOccurred())
				Expect(txs).To(HaveLen(3))
				for i, tx := range txs {
					Expect([]byte(tx.TxHash)).To(Equal(chaintest.TxHash(1, i)))
					Expect(tx.From.String()).To(Equal(chaintest.Sender))
				}
			})

			It("should return transaction results", func() {
				result, err := r.TransactionResultByHash(chaintest.TxHash(2, 1))
				Expect(err).NotTo(HaveOccurred())
				Expect(result.BlockHash).To(Equal(hex.EncodeToString(chaintest.BlockHash(2))))

				var status struct {
					Status string `json:"status"`
				}
				Expect(json.Unmarshal(result.Result, &status)).To(Succeed())
				Expect(status.Status).To(Equal("0x1"))

				_, err = r.TransactionResultByHash(chaintest.TxHash(2, 9))
				Expect(err).To(MatchError(reader.ErrNotFound))
			})

			It("should refuse queries after Close", func() {
				Expect(r.Close()).To(Succeed())
				Expect(r.Close()).To(Succeed())

				_, err := r.LastBlock()
				Expect(err).To(MatchError(reader.ErrNotOpen))
			})
		})
	}

	Context("with irregular index values", func() {
		It("should follow raw hashes stored under height keys", func() {
			store, err := database.Open(dbPath, database.Options{Type: database.LevelDB, Writable: true})
			Expect(err).NotTo(HaveOccurred())
			b := chaintest.NewBlock(block.V03, 7, 1)
			payload, err := b.Payload()
			Expect(err).NotTo(HaveOccurred())
			Expect(store.Put(keys.HashKey(b.Hash), payload)).To(Succeed())
			Expect(store.Put(keys.HeightKey(7), b.Hash)).To(Succeed())
			Expect(store.Close()).To(Succeed())

			Expect(r.Open(dbPath)).To(Succeed())
			got, err := r.BlockByHeight(7)
			Expect(err).NotTo(HaveOccurred())
			Expect(got.Height).To(Equal(int64(7)))
		})

		It("should surface unsupported block versions", func() {
			hash := chaintest.BlockHash(1)
			Expect(chaintest.WriteRaw(dbPath, 1, hash, []byte(`{"version":"0.7"}`))).To(Succeed())

			Expect(r.Open(dbPath)).To(Succeed())
			_, err := r.BlockByHeight(1)
			Expect(err).To(MatchError(block.ErrUnsupportedVersion))
			Expect(err.Error()).To(ContainSubstring("0.7"))
			Expect(err.Error()).To(ContainSubstring("height 1"))
		})
	})

	It("should reopen a different store", func() {
		other := filepath.Join(tempDir, "other")
		Expect(chaintest.Write(dbPath, chaintest.Chain(block.V03, 2, 0)...)).To(Succeed())
		Expect(chaintest.Write(other, chaintest.Chain(block.V03, 4, 0)...)).To(Succeed())

		Expect(r.Open(dbPath)).To(Succeed())
		Expect(r.Open(other)).To(Succeed())
		b, err := r.LastBlock()
		Expect(err).NotTo(HaveOccurred())
		Expect(b.Height).To(Equal(int64(3)))
		Expect(os.RemoveAll(dbPath)).To(Succeed())
	})
})
