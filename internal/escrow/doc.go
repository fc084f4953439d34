/*
Package escrow holds a fungible deposit in custody until both parties agree.

The depositor opens an escrow naming a counterparty and deposits funds,
which move on the ledger into a custody account owned by the escrow. Each
party approves once; when both have approved the escrow becomes Approved and
either party may release the funds to the counterparty. Before mutual
approval either party may refund the deposit to the depositor.

	Empty -> Pending -> Approved -> Completed
	            \
	             -> Cancelled

Completed and Cancelled are terminal and reject every further change.
*/
package escrow
