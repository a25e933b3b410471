package reconciler_test

import (
	"context"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/gsmc-io/gsmc/internal/cloud"
	"github.com/gsmc-io/gsmc/internal/cloud/cloudfake"
	"github.com/gsmc-io/gsmc/internal/model"
	"github.com/gsmc-io/gsmc/internal/reconciler"
	"github.com/gsmc-io/gsmc/internal/store"
)

var _ = Describe("Reconciler", func() {
	var (
		gw  *cloudfake.Gateway
		st  *store.Store
		rec *reconciler.Reconciler
		ctx context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		gw = cloudfake.New()
		var err error
		st, err = store.Open(GinkgoT().TempDir())
		Expect(err).NotTo(HaveOccurred())
		rec = reconciler.New(st, gw, nil, nil)
	})

	It("adopts a cloud VM with no local record", func() {
		inst, err := gw.RunInstance(ctx, cloud.RunInstanceParams{
			Tags: map[string]string{
				cloud.TagID:   "abc123def456",
				cloud.TagGame: "factorio",
				cloud.TagName: "factorio-abc123",
			},
		})
		Expect(err).NotTo(HaveOccurred())

		Expect(rec.Reconcile(ctx, []string{"us-east-1"})).To(Succeed())

		got, found, err := st.GetServer("abc123def456")
		Expect(err).NotTo(HaveOccurred())
		Expect(found).To(BeTrue())
		Expect(got.Status).To(Equal(model.StatusRunning))
		Expect(got.InstanceID).To(Equal(inst.InstanceID))
	})

	It("deletes a local record whose cloud VM is gone", func() {
		Expect(st.SaveServer(model.Server{ID: "ghost000001", Name: "ghost", Region: "us-east-1"})).To(Succeed())

		Expect(rec.Reconcile(ctx, []string{"us-east-1"})).To(Succeed())

		_, found, err := st.GetServer("ghost000001")
		Expect(err).NotTo(HaveOccurred())
		Expect(found).To(BeFalse())
	})

	It("preserves a stopped container distinction when the VM is running", func() {
		Expect(st.SaveServer(model.Server{
			ID: "stopme000001", Name: "stopme", Region: "us-east-1", Status: model.StatusStopped,
		})).To(Succeed())
		_, err := gw.RunInstance(ctx, cloud.RunInstanceParams{
			Tags: map[string]string{cloud.TagID: "stopme000001", cloud.TagGame: "factorio"},
		})
		Expect(err).NotTo(HaveOccurred())

		Expect(rec.Reconcile(ctx, []string{"us-east-1"})).To(Succeed())

		got, found, err := st.GetServer("stopme000001")
		Expect(err).NotTo(HaveOccurred())
		Expect(found).To(BeTrue())
		Expect(got.Status).To(Equal(model.StatusStopped))
	})

	It("refreshes a single record and clears it when the VM vanished", func() {
		Expect(st.SaveServer(model.Server{ID: "solo000000001", Name: "solo", Region: "us-east-1", InstanceID: "i-missing"})).To(Succeed())

		got, err := rec.RefreshRecord(ctx, "solo000000001")
		Expect(err).NotTo(HaveOccurred())
		Expect(got).To(BeNil())

		_, found, err := st.GetServer("solo000000001")
		Expect(err).NotTo(HaveOccurred())
		Expect(found).To(BeFalse())
	})
})
