package sstblock_test

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"strings"
	"sync"

	"github.com/bsm/sstblock"
	"github.com/cockroachdb/errors"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

// rawBlock appends a restart array and a restart count to entries.
func rawBlock(entries []byte, restarts ...uint32) []byte {
	buf := append([]byte(nil), entries...)
	for _, o := range restarts {
		buf = binary.LittleEndian.AppendUint32(buf, o)
	}
	return binary.LittleEndian.AppendUint32(buf, uint32(len(restarts)))
}

var _ = Describe("Block", func() {
	exampleBlock := []byte{
		0, 3, 2, 'a', 'b', 'c', 'v', '1', // abc => v1
		2, 1, 2, 'd', 'v', '2',           // ab+d => v2
		0, 0, 0, 0,                       // restart 0
		1, 0, 0, 0,                       // 1 restart
	}

	It("should compute geometry", func() {
		b := sstblock.NewBlock(exampleBlock, false)
		Expect(b.Len()).To(Equal(22))
		Expect(b.NumRestarts()).To(Equal(1))
	})

	It("should reject short buffers", func() {
		b := sstblock.NewBlock([]byte{1, 0, 0}, false)
		Expect(b.Len()).To(Equal(0))
		Expect(b.NumRestarts()).To(Equal(0))

		iter := b.NewIterator(nil)
		Expect(iter.Valid()).To(BeFalse())
		Expect(iter.SeekToFirst()).To(BeFalse())
		Expect(iter.SeekToLast()).To(BeFalse())
		Expect(iter.Seek([]byte("abc"))).To(BeFalse())
		Expect(iter.Err()).To(MatchError(ContainSubstring("bad block contents")))
		Expect(errors.Is(iter.Err(), sstblock.ErrCorruption)).To(BeTrue())
	})

	It("should reject restart counts that do not fit", func() {
		b := sstblock.NewBlock([]byte{0, 0, 0, 0, 2, 0, 0, 0}, false)
		Expect(b.Len()).To(Equal(0))

		iter := b.NewIterator(nil)
		Expect(iter.SeekToFirst()).To(BeFalse())
		Expect(errors.Is(iter.Err(), sstblock.ErrCorruption)).To(BeTrue())

		b = sstblock.NewBlock([]byte{0, 0, 0, 0, 0xff, 0xff, 0xff, 0xff}, false)
		Expect(b.Len()).To(Equal(0))
	})

	It("should treat zero restarts as empty", func() {
		b := sstblock.NewBlock([]byte{0, 0, 0, 0}, false)
		Expect(b.Len()).To(Equal(4))
		Expect(b.NumRestarts()).To(Equal(0))

		iter := b.NewIterator(nil)
		Expect(iter.SeekToFirst()).To(BeFalse())
		Expect(iter.SeekToLast()).To(BeFalse())
		Expect(iter.Seek(nil)).To(BeFalse())
		Expect(iter.Valid()).To(BeFalse())
		Expect(iter.Err()).NotTo(HaveOccurred())
	})

	It("should treat restarts without entries as empty", func() {
		iter := sstblock.NewBlock(rawBlock(nil, 0), false).NewIterator(nil)
		Expect(iter.SeekToFirst()).To(BeFalse())
		Expect(iter.SeekToLast()).To(BeFalse())
		Expect(iter.Seek([]byte("x"))).To(BeFalse())
		Expect(iter.Err()).NotTo(HaveOccurred())
	})

	It("should release", func() {
		b := sstblock.NewBlock(buildBlock(16, kv{"a", "1"}), true)
		b.Release()
		b.Release()
		Expect(b.Len()).To(Equal(0))
		Expect(b.NewIterator(nil).Err()).To(HaveOccurred())
	})

	Describe("Iterator", func() {
		var subject sstblock.Iterator

		BeforeEach(func() {
			subject = sstblock.NewBlock(exampleBlock, false).NewIterator(bytes.Compare)
		})

		It("should start invalid", func() {
			Expect(subject.Valid()).To(BeFalse())
			Expect(subject.Err()).NotTo(HaveOccurred())
		})

		It("should iterate", func() {
			Expect(subject.SeekToFirst()).To(BeTrue())
			Expect(subject.Key()).To(Equal([]byte("abc")))
			Expect(subject.Value()).To(Equal([]byte("v1")))

			Expect(subject.Next()).To(BeTrue())
			Expect(subject.Key()).To(Equal([]byte("abd")))
			Expect(subject.Value()).To(Equal([]byte("v2")))

			Expect(subject.Next()).To(BeFalse())
			Expect(subject.Valid()).To(BeFalse())
			Expect(subject.Err()).NotTo(HaveOccurred())
		})

		It("should iterate backwards", func() {
			Expect(subject.SeekToLast()).To(BeTrue())
			Expect(subject.Key()).To(Equal([]byte("abd")))
			Expect(subject.Value()).To(Equal([]byte("v2")))

			Expect(subject.Prev()).To(BeTrue())
			Expect(subject.Key()).To(Equal([]byte("abc")))
			Expect(subject.Value()).To(Equal([]byte("v1")))

			Expect(subject.Prev()).To(BeFalse())
			Expect(subject.Err()).NotTo(HaveOccurred())
		})

		It("should seek", func() {
			Expect(subject.Seek([]byte("abd"))).To(BeTrue())
			Expect(subject.Key()).To(Equal([]byte("abd")))
			Expect(subject.Value()).To(Equal([]byte("v2")))

			Expect(subject.Seek([]byte("abc"))).To(BeTrue())
			Expect(subject.Key()).To(Equal([]byte("abc")))

			Expect(subject.Seek([]byte("abcc"))).To(BeTrue())
			Expect(subject.Key()).To(Equal([]byte("abd")))

			Expect(subject.Seek(nil)).To(BeTrue())
			Expect(subject.Key()).To(Equal([]byte("abc")))

			Expect(subject.Seek([]byte("abz"))).To(BeFalse())
			Expect(subject.Err()).NotTo(HaveOccurred())
		})

		It("should not copy values", func() {
			Expect(subject.SeekToFirst()).To(BeTrue())
			val := subject.Value()
			Expect(cap(val)).To(Equal(2))
			Expect(&val[0]).To(BeIdenticalTo(&exampleBlock[6]))
		})

		It("should panic when accessed while invalid", func() {
			Expect(func() { subject.Key() }).To(Panic())
			Expect(func() { subject.Value() }).To(Panic())
			Expect(func() { subject.Next() }).To(Panic())
			Expect(func() { subject.Prev() }).To(Panic())

			empty := sstblock.NewBlock([]byte{0, 0, 0, 0}, false).NewIterator(nil)
			Expect(func() { empty.Key() }).To(Panic())
			Expect(func() { empty.Next() }).To(Panic())
		})
	})

	Describe("encoded with BlockWriter", func() {
		for _, interval := range []int{1, 2, 3, 16, 1000} {
			interval := interval

			Context(fmt.Sprintf("restart interval %d", interval), func() {
				var pairs []kv
				var block *sstblock.Block

				BeforeEach(func() {
					pairs = seedPairs(100)
					block = sstblock.NewBlock(buildBlock(interval, pairs...), false)
				})

				It("should round-trip", func() {
					Expect(collectForward(block.NewIterator(nil))).To(Equal(pairs))
				})

				It("should iterate in reverse", func() {
					iter := block.NewIterator(nil)
					Expect(collectBackward(iter)).To(Equal(reversed(pairs)))
					Expect(iter.Valid()).To(BeFalse())
					Expect(iter.Err()).NotTo(HaveOccurred())
				})

				It("should seek existing keys", func() {
					iter := block.NewIterator(nil)
					for _, p := range pairs {
						Expect(iter.Seek([]byte(p.K))).To(BeTrue(), "for %s", p.K)
						Expect(string(iter.Key())).To(Equal(p.K))
						Expect(string(iter.Value())).To(Equal(p.V))
					}
				})

				It("should seek missing keys", func() {
					iter := block.NewIterator(nil)
					for i := 0; i < len(pairs)-1; i++ {
						target := fmt.Sprintf("user/%04d/profile", i*2+1)
						Expect(iter.Seek([]byte(target))).To(BeTrue(), "for %s", target)
						Expect(string(iter.Key())).To(Equal(pairs[i+1].K))
					}

					Expect(iter.Seek([]byte("user/"))).To(BeTrue())
					Expect(string(iter.Key())).To(Equal(pairs[0].K))

					Expect(iter.Seek([]byte("user/9999"))).To(BeFalse())
					Expect(iter.Err()).NotTo(HaveOccurred())
				})

				It("should reconstruct keys consistently", func() {
					forward := block.NewIterator(nil)
					direct := block.NewIterator(nil)
					for ok := forward.SeekToFirst(); ok; ok = forward.Next() {
						Expect(direct.Seek(forward.Key())).To(BeTrue())
						Expect(direct.Key()).To(Equal(forward.Key()))
						Expect(direct.Value()).To(Equal(forward.Value()))
					}
				})

				It("should step back and forth", func() {
					iter := block.NewIterator(nil)
					Expect(iter.Seek([]byte(pairs[50].K))).To(BeTrue())

					Expect(iter.Prev()).To(BeTrue())
					Expect(string(iter.Key())).To(Equal(pairs[49].K))
					Expect(iter.Prev()).To(BeTrue())
					Expect(string(iter.Key())).To(Equal(pairs[48].K))
					Expect(iter.Next()).To(BeTrue())
					Expect(string(iter.Key())).To(Equal(pairs[49].K))
					Expect(iter.Next()).To(BeTrue())
					Expect(string(iter.Key())).To(Equal(pairs[50].K))

					Expect(iter.SeekToFirst()).To(BeTrue())
					Expect(iter.Prev()).To(BeFalse())
					Expect(iter.Err()).NotTo(HaveOccurred())
				})
			})
		}

		It("should decode multi-byte lengths", func() {
			pairs := []kv{
				{K: strings.Repeat("a", 200), V: strings.Repeat("x", 300)},
				{K: strings.Repeat("a", 201), V: "short"},
				{K: strings.Repeat("a", 199) + "b", V: strings.Repeat("y", 70000)},
				{K: "b", V: ""},
			}
			block := sstblock.NewBlock(buildBlock(2, pairs...), false)
			Expect(collectForward(block.NewIterator(nil))).To(Equal(pairs))
			Expect(collectBackward(block.NewIterator(nil))).To(Equal(reversed(pairs)))

			iter := block.NewIterator(nil)
			Expect(iter.Seek([]byte(strings.Repeat("a", 201)))).To(BeTrue())
			Expect(string(iter.Value())).To(Equal("short"))
		})

		It("should order by custom comparators", func() {
			reverse := func(a, b []byte) int { return bytes.Compare(b, a) }
			pairs := []kv{{"c", "3"}, {"b", "2"}, {"a", "1"}}
			block := sstblock.NewBlock(buildBlock(1, pairs...), false)

			iter := block.NewIterator(reverse)
			Expect(iter.Seek([]byte("bb"))).To(BeTrue())
			Expect(string(iter.Key())).To(Equal("b"))
			Expect(iter.Seek([]byte("0"))).To(BeFalse())
		})

		It("should support concurrent iterators", func() {
			pairs := seedPairs(500)
			block := sstblock.NewBlock(buildBlock(16, pairs...), false)

			var wg sync.WaitGroup
			results := make([][]kv, 8)
			for n := range results {
				wg.Add(1)
				go func(n int) {
					defer GinkgoRecover()
					defer wg.Done()

					if n%2 == 0 {
						results[n] = collectForward(block.NewIterator(nil))
					} else {
						results[n] = reversed(collectBackward(block.NewIterator(nil)))
					}
				}(n)
			}
			wg.Wait()

			for _, res := range results {
				Expect(res).To(Equal(pairs))
			}
		})
	})

	Describe("corruption", func() {
		It("should detect truncated values", func() {
			// drop the last value byte, then re-attach the restart array
			data := rawBlock(exampleBlock[:len(exampleBlock)-8-1], 0)
			iter := sstblock.NewBlock(data, false).NewIterator(nil)

			Expect(iter.SeekToFirst()).To(BeTrue())
			Expect(iter.Key()).To(Equal([]byte("abc")))
			Expect(iter.Next()).To(BeFalse())
			Expect(iter.Err()).To(MatchError(ContainSubstring("bad entry in block")))
			Expect(errors.Is(iter.Err(), sstblock.ErrCorruption)).To(BeTrue())
		})

		It("should keep errors sticky", func() {
			iter := sstblock.NewBlock(rawBlock([]byte{0, 3, 9, 'a', 'b', 'c'}, 0), false).NewIterator(nil)
			Expect(iter.SeekToFirst()).To(BeFalse())
			err := iter.Err()
			Expect(err).To(MatchError(ContainSubstring("bad entry in block")))

			Expect(iter.SeekToFirst()).To(BeFalse())
			Expect(iter.SeekToLast()).To(BeFalse())
			Expect(iter.Seek([]byte("a"))).To(BeFalse())
			Expect(iter.Valid()).To(BeFalse())
			Expect(iter.Err()).To(BeIdenticalTo(err))
		})

		It("should detect shared prefixes longer than the previous key", func() {
			iter := sstblock.NewBlock(rawBlock([]byte{3, 1, 1, 'x', 'y'}, 0), false).NewIterator(nil)
			Expect(iter.SeekToFirst()).To(BeFalse())
			Expect(errors.Is(iter.Err(), sstblock.ErrCorruption)).To(BeTrue())
		})

		It("should detect truncated varints", func() {
			iter := sstblock.NewBlock(rawBlock([]byte{0x80, 0x80, 0x80}, 0), false).NewIterator(nil)
			Expect(iter.SeekToFirst()).To(BeFalse())
			Expect(errors.Is(iter.Err(), sstblock.ErrCorruption)).To(BeTrue())

			iter = sstblock.NewBlock(rawBlock([]byte{0, 1}, 0), false).NewIterator(nil)
			Expect(iter.SeekToFirst()).To(BeFalse())
			Expect(errors.Is(iter.Err(), sstblock.ErrCorruption)).To(BeTrue())
		})

		It("should detect front-coded restart entries while seeking", func() {
			data := rawBlock([]byte{
				0, 1, 1, 'a', '1',
				1, 1, 1, 'b', '2', // restart entry with a shared prefix
			}, 0, 5)
			iter := sstblock.NewBlock(data, false).NewIterator(nil)
			Expect(iter.Seek([]byte("z"))).To(BeFalse())
			Expect(iter.Err()).To(MatchError(ContainSubstring("bad entry in block")))
		})

		It("should stop at restart points beyond the data", func() {
			data := rawBlock([]byte{0, 1, 1, 'a', '1'}, 200)
			iter := sstblock.NewBlock(data, false).NewIterator(nil)
			Expect(iter.SeekToFirst()).To(BeFalse())
			Expect(iter.Err()).NotTo(HaveOccurred())
		})
	})
})
