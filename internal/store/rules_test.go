package store_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"

	"adsbstats.dev/collector/internal/store"
	"adsbstats.dev/collector/internal/store/storetest"
)

var _ = Describe("Rules", func() {
	var (
		ctx context.Context
		db  *gorm.DB
	)

	BeforeEach(func() {
		ctx = context.Background()
		var err error
		db, err = storetest.Open(GinkgoT().TempDir())
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(func() { _ = store.CloseDB(db, nil) })
	})

	It("should reject incomplete rules", func() {
		Expect(store.CreateRule(ctx, db, nil)).To(HaveOccurred())
		Expect(store.CreateRule(ctx, db, &store.AlertRule{Name: "x", Kind: "squawk"})).To(HaveOccurred())
	})

	It("should list only enabled rules", func() {
		emergency := &store.AlertRule{Name: "Emergency", Kind: "squawk", Value: "7700", Enabled: true}
		a380 := &store.AlertRule{Name: "A380", Kind: "aircraft_type", Value: "A388", Enabled: false}
		Expect(store.CreateRule(ctx, db, emergency)).To(Succeed())
		Expect(store.CreateRule(ctx, db, a380)).To(Succeed())

		rules, err := store.ListEnabledRules(ctx, db)
		Expect(err).NotTo(HaveOccurred())
		Expect(rules).To(HaveLen(1))
		Expect(rules[0].Name).To(Equal("Emergency"))

		all, err := store.ListRules(ctx, db)
		Expect(err).NotTo(HaveOccurred())
		Expect(all).To(HaveLen(2))
	})

	It("should toggle a rule", func() {
		rule := &store.AlertRule{Name: "My Flight", Kind: "callsign", Value: "DLH400", Enabled: true}
		Expect(store.CreateRule(ctx, db, rule)).To(Succeed())

		Expect(store.SetRuleEnabled(ctx, db, rule.ID, false)).To(Succeed())
		rules, err := store.ListEnabledRules(ctx, db)
		Expect(err).NotTo(HaveOccurred())
		Expect(rules).To(BeEmpty())
	})

	It("should report unknown rule ids", func() {
		err := store.SetRuleEnabled(ctx, db, 999, true)
		Expect(err).To(MatchError(store.ErrRuleNotFound))
	})
})
