package store_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"gorm.io/gorm"

	"adsbstats.dev/collector/internal/store"
	"adsbstats.dev/collector/internal/store/storetest"
)

var _ = Describe("Settings", func() {
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

	It("should read credentials after they are set", func() {
		Expect(store.SetSetting(ctx, db, store.SettingPushoverUserKey, "user")).To(Succeed())
		Expect(store.SetSetting(ctx, db, store.SettingPushoverAPIToken, "token")).To(Succeed())

		settings, err := store.LoadSettings(ctx, db)
		Expect(err).NotTo(HaveOccurred())
		Expect(settings.PushoverUserKey).To(Equal("user"))
		Expect(settings.PushoverAPIToken).To(Equal("token"))
		Expect(settings.HasPushoverCredentials()).To(BeTrue())
	})

	DescribeTable("should interpret the alerts switch",
		func(value string, enabled bool) {
			Expect(store.SetSetting(ctx, db, store.SettingAlertsEnabled, value)).To(Succeed())
			settings, err := store.LoadSettings(ctx, db)
			Expect(err).NotTo(HaveOccurred())
			Expect(settings.AlertsEnabled).To(Equal(enabled))
		},
		Entry("one", "1", true),
		Entry("true", "true", true),
		Entry("zero", "0", false),
		Entry("empty", "", false),
	)

	It("should treat a missing alerts key as disabled", func() {
		Expect(db.Where("key = ?", store.SettingAlertsEnabled).Delete(&store.Setting{}).Error).To(Succeed())
		settings, err := store.LoadSettings(ctx, db)
		Expect(err).NotTo(HaveOccurred())
		Expect(settings.AlertsEnabled).To(BeFalse())
	})

	It("should list settings ordered by key", func() {
		rows, err := store.ListSettings(ctx, db)
		Expect(err).NotTo(HaveOccurred())
		Expect(rows).To(HaveLen(3))
		Expect(rows[0].Key).To(Equal(store.SettingAlertsEnabled))
	})
})
